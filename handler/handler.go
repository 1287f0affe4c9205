package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"parts-order-bot/internal/domain"
	"parts-order-bot/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// OrderService is the part of the dialog engine exposed over HTTP.
type OrderService interface {
	HandleMessage(ctx context.Context, in usecase.MessageInput) (usecase.TurnOutput, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	ApplyOEMResult(ctx context.Context, orderID string, res usecase.OEMResult) (domain.Order, error)
	PublishOffers(ctx context.Context, orderID string) (domain.Order, error)
	ConfirmOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type Handler struct {
	svc       OrderService
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	listLimit int
}

type Option func(*Handler)

// WithGatherer enables GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithListLimit sets the page size of GET /orders when no limit is given.
func WithListLimit(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.listLimit = n
		}
	}
}

func NewHandler(svc OrderService, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: order service must not be nil")
	}
	h := &Handler{svc: svc, logger: slog.Default(), listLimit: 50}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type messageRequest struct {
	OrderID   string `json:"orderId"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type messageResponse struct {
	OrderID             string                `json:"orderId"`
	ReplyText           string                `json:"replyText"`
	NextStatus          domain.OrderStatus    `json:"nextStatus"`
	SlotsToAsk          []domain.QuestionType `json:"slotsToAsk"`
	ShouldApologize     bool                  `json:"shouldApologize"`
	DetectedFrustration bool                  `json:"detectedFrustration"`
	Duplicate           bool                  `json:"duplicate,omitempty"`
}

type oemResultRequest struct {
	OEMStatus domain.OEMStatus   `json:"oemStatus"`
	OEMNumber string             `json:"oemNumber"`
	Offers    []domain.ShopOffer `json:"offers"`
}

type ordersResponse struct {
	Orders []domain.Order `json:"orders"`
}

type offersResponse struct {
	OrderID string             `json:"orderId"`
	Offers  []domain.ShopOffer `json:"offers"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Handle routes one API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	resp := h.route(ctx, log, req)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = corrID
	log.Info("request handled", "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, log *slog.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	segs := strings.Split(strings.Trim(req.Path, "/"), "/")
	method := strings.ToUpper(req.HTTPMethod)

	switch {
	case len(segs) == 1 && segs[0] == "messages":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.postMessage(ctx, log, req)
	case len(segs) == 1 && segs[0] == "metrics":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.metrics(log)
	case len(segs) == 1 && segs[0] == "orders":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.listOrders(ctx, log, req)
	case len(segs) >= 2 && segs[0] == "orders" && segs[1] != "":
		return h.orderRoute(ctx, log, method, segs[1], segs[2:], req)
	}
	return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"})
}

func (h *Handler) orderRoute(ctx context.Context, log *slog.Logger, method, id string, rest []string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	sub := strings.Join(rest, "/")
	switch sub {
	case "":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		order, err := h.svc.GetOrder(ctx, id)
		if err != nil {
			return h.fail(log, err)
		}
		return jsonResponse(http.StatusOK, order)
	case "offers":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		order, err := h.svc.GetOrder(ctx, id)
		if err != nil {
			return h.fail(log, err)
		}
		offers := order.Offers
		if offers == nil {
			offers = []domain.ShopOffer{}
		}
		return jsonResponse(http.StatusOK, offersResponse{OrderID: order.ID, Offers: offers})
	case "offers/publish":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.orderMutation(log, func() (domain.Order, error) { return h.svc.PublishOffers(ctx, id) })
	case "confirm":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.orderMutation(log, func() (domain.Order, error) { return h.svc.ConfirmOrder(ctx, id) })
	case "oem-result":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		var body oemResultRequest
		if err := decodeBody(req, &body); err != nil {
			return invalidBody(log, err)
		}
		return h.orderMutation(log, func() (domain.Order, error) {
			return h.svc.ApplyOEMResult(ctx, id, usecase.OEMResult{
				Status:    body.OEMStatus,
				OEMNumber: body.OEMNumber,
				Offers:    body.Offers,
			})
		})
	}
	return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"})
}

func (h *Handler) postMessage(ctx context.Context, log *slog.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var body messageRequest
	if err := decodeBody(req, &body); err != nil {
		return invalidBody(log, err)
	}
	out, err := h.svc.HandleMessage(ctx, usecase.MessageInput{
		OrderID:   body.OrderID,
		ChatID:    body.ChatID,
		MessageID: body.MessageID,
		Text:      body.Text,
	})
	if err != nil {
		return h.fail(log, err)
	}
	return jsonResponse(http.StatusOK, messageResponse{
		OrderID:             out.OrderID,
		ReplyText:           out.Reply,
		NextStatus:          out.Status,
		SlotsToAsk:          out.SlotsToAsk,
		ShouldApologize:     out.ShouldApologize,
		DetectedFrustration: out.DetectedFrustration,
		Duplicate:           out.Duplicate,
	})
}

func (h *Handler) listOrders(ctx context.Context, log *slog.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	limit := h.listLimit
	if raw := req.QueryStringParameters["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_limit"})
		}
		limit = n
	}
	orders, err := h.svc.ListOrders(ctx, limit)
	if err != nil {
		return h.fail(log, err)
	}
	return jsonResponse(http.StatusOK, ordersResponse{Orders: orders})
}

func (h *Handler) orderMutation(log *slog.Logger, fn func() (domain.Order, error)) events.APIGatewayProxyResponse {
	order, err := fn()
	if err != nil {
		return h.fail(log, err)
	}
	return jsonResponse(http.StatusOK, order)
}

func (h *Handler) metrics(log *slog.Logger) events.APIGatewayProxyResponse {
	if h.gatherer == nil {
		return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "metrics_disabled"})
	}
	families, err := h.gatherer.Gather()
	if err != nil {
		log.Error("gather metrics failed", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Reason: "metrics_gather_error"})
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			log.Error("encode metrics failed", "err", err)
			return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Reason: "metrics_encode_error"})
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": string(format)},
		Body:       buf.String(),
	}
}

func (h *Handler) fail(log *slog.Logger, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		log.Error("unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Reason: "unexpected_error"})
	}

	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorInvalidTransition, usecase.ErrorConflict:
		status = http.StatusConflict
	case usecase.ErrorStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", err)
	} else {
		log.Warn("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}

	resp := jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
	if ucErr.Retryable() {
		resp.Headers["Retry-After"] = "1"
	}
	return resp
}

func invalidBody(log *slog.Logger, err error) events.APIGatewayProxyResponse {
	log.Warn("invalid request body", "err", err)
	return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
}

func methodNotAllowed() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"})
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json body: %w", err)
	}
	return nil
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","reason":"encode_response_error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

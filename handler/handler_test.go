package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"parts-order-bot/internal/domain"
	"parts-order-bot/internal/metrics"
	"parts-order-bot/internal/usecase"
)

type stubService struct {
	turn     usecase.TurnOutput
	order    domain.Order
	orders   []domain.Order
	err      error
	in       usecase.MessageInput
	oem      usecase.OEMResult
	orderID  string
	limit    int
	lastCall string
}

func (s *stubService) HandleMessage(_ context.Context, in usecase.MessageInput) (usecase.TurnOutput, error) {
	s.lastCall = "message"
	s.in = in
	return s.turn, s.err
}

func (s *stubService) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.lastCall = "get"
	s.orderID = id
	return s.order, s.err
}

func (s *stubService) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.lastCall = "list"
	s.limit = limit
	return s.orders, s.err
}

func (s *stubService) ApplyOEMResult(_ context.Context, id string, res usecase.OEMResult) (domain.Order, error) {
	s.lastCall = "oem"
	s.orderID = id
	s.oem = res
	return s.order, s.err
}

func (s *stubService) PublishOffers(_ context.Context, id string) (domain.Order, error) {
	s.lastCall = "publish"
	s.orderID = id
	return s.order, s.err
}

func (s *stubService) ConfirmOrder(_ context.Context, id string) (domain.Order, error) {
	s.lastCall = "confirm"
	s.orderID = id
	return s.order, s.err
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, svc OrderService, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(svc, opts...)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_PostMessage(t *testing.T) {
	svc := &stubService{turn: usecase.TurnOutput{
		OrderID:         "order-1",
		Reply:           "Für welche Einbauposition brauchen Sie das Teil?",
		Status:          domain.StatusCollectPart,
		SlotsToAsk:      []domain.QuestionType{domain.QuestionPosition},
		ShouldApologize: true,
	}}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages",
		`{"orderId":"order-1","chatId":"4917012345","messageId":"wamid-1","text":"Bremsbeläge für BMW 316ti 2004"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.MessageInput{
		OrderID:   "order-1",
		ChatID:    "4917012345",
		MessageID: "wamid-1",
		Text:      "Bremsbeläge für BMW 316ti 2004",
	}, svc.in)

	out := parseBody[messageResponse](t, resp.Body)
	require.Equal(t, "order-1", out.OrderID)
	require.Equal(t, domain.StatusCollectPart, out.NextStatus)
	require.Equal(t, []domain.QuestionType{domain.QuestionPosition}, out.SlotsToAsk)
	require.True(t, out.ShouldApologize)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_Base64Body(t *testing.T) {
	svc := &stubService{turn: usecase.TurnOutput{OrderID: "o", SlotsToAsk: []domain.QuestionType{}}}
	h := newTestHandler(t, svc)

	event := makeEvent(http.MethodPost, "/messages", base64.StdEncoding.EncodeToString([]byte(`{"text":"Deutsch"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Deutsch", svc.in.Text)
}

func TestHandle_InvalidBody(t *testing.T) {
	for _, body := range []string{`not-json`, `{"text":"hi","extra":1}`} {
		svc := &stubService{}
		h := newTestHandler(t, svc)

		resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages", body))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, svc.lastCall)

		out := parseBody[errorResponse](t, resp.Body)
		require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
		require.Equal(t, "invalid_body", out.Reason)
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		retry  bool
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "order_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "invalid transition", err: &usecase.Error{Code: usecase.ErrorInvalidTransition, Reason: "order_not_in_oem_lookup"}, status: http.StatusConflict, code: string(usecase.ErrorInvalidTransition)},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "order_version_conflict"}, status: http.StatusConflict, code: string(usecase.ErrorConflict), retry: true},
		{name: "store unavailable", err: &usecase.Error{Code: usecase.ErrorStoreUnavailable, Reason: "order_store_write_error"}, status: http.StatusServiceUnavailable, code: string(usecase.ErrorStoreUnavailable), retry: true},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "x"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/messages", `{"text":"hallo"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			_, hasRetry := resp.Headers["Retry-After"]
			require.Equal(t, tc.retry, hasRetry)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	event := makeEvent(http.MethodGet, "/orders", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_OrderRoutes(t *testing.T) {
	order := domain.Order{
		ID:     "o1",
		Status: domain.StatusShowOffers,
		Offers: []domain.ShopOffer{{ID: "of-1", Brand: "Bosch", PriceCents: 3490, Currency: "EUR"}},
	}
	cases := []struct {
		method string
		path   string
		body   string
		call   string
	}{
		{method: http.MethodGet, path: "/orders/o1", call: "get"},
		{method: http.MethodPost, path: "/orders/o1/offers/publish", call: "publish"},
		{method: http.MethodPost, path: "/orders/o1/confirm", call: "confirm"},
		{method: http.MethodPost, path: "/orders/o1/oem-result", body: `{"oemStatus":"success","oemNumber":"123","offers":[{"brand":"Bosch","priceCents":3490}]}`, call: "oem"},
	}

	for _, tc := range cases {
		t.Run(tc.call, func(t *testing.T) {
			svc := &stubService{order: order}
			h := newTestHandler(t, svc)

			resp, err := h.Handle(context.Background(), makeEvent(tc.method, tc.path, tc.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, tc.call, svc.lastCall)
			require.Equal(t, "o1", svc.orderID)
			require.Equal(t, order, parseBody[domain.Order](t, resp.Body))
		})
	}
}

func TestHandle_OEMResultBody(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	_, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/orders/o1/oem-result",
		`{"oemStatus":"multiple_matches","oemNumber":"","offers":[]}`))
	require.NoError(t, err)
	require.Equal(t, domain.OEMMultipleMatches, svc.oem.Status)
	require.Empty(t, svc.oem.Offers)
}

func TestHandle_Offers(t *testing.T) {
	svc := &stubService{order: domain.Order{ID: "o2"}}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/orders/o2/offers", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"orderId":"o2","offers":[]}`, resp.Body)
}

func TestHandle_ListOrders(t *testing.T) {
	svc := &stubService{orders: []domain.Order{{ID: "a"}, {ID: "b"}}}
	h := newTestHandler(t, svc, WithListLimit(25))

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/orders", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 25, svc.limit)
	require.Len(t, parseBody[ordersResponse](t, resp.Body).Orders, 2)

	event := makeEvent(http.MethodGet, "/orders", "")
	event.QueryStringParameters = map[string]string{"limit": "5"}
	_, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, 5, svc.limit)

	event.QueryStringParameters = map[string]string{"limit": "abc"}
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_UnknownRoutes(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodDelete, "/orders/o1", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/messages", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_Metrics(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/metrics", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	rec.ObserveTurn(string(domain.StatusCollectPart))

	h = newTestHandler(t, &stubService{}, WithGatherer(reg))
	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/metrics", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Headers["Content-Type"], "text/plain")
	require.Contains(t, resp.Body, `orderbot_turns_total{status="collect_part"} 1`)
}

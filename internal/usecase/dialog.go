package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"parts-order-bot/internal/dialog"
	"parts-order-bot/internal/domain"
	"parts-order-bot/internal/metrics"
	"parts-order-bot/internal/nlu"
)

const defaultMaxMessage = 1000

type NLU interface {
	Extract(ctx context.Context, req nlu.Request) (nlu.Result, error)
}

// OrderStore persists orders. GetOrder and GetTurn return domain.ErrNotFound
// for missing items; SaveOrder returns domain.ErrOrderConflict when the
// stored version is not order.Version-1 and domain.ErrDuplicateTurn when
// the turn was already stored.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetTurn(ctx context.Context, orderID, messageID string) (domain.TurnRecord, error)
	SaveOrder(ctx context.Context, order domain.Order, turn *domain.TurnRecord) error
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
}

type Metrics interface {
	ObserveTurn(status string)
	IncError(kind string)
	IncDuplicate()
	ObserveNLU(outcome string, d time.Duration)
}

// DialogService owns every mutation of an order: inbound customer messages
// as well as the events of the OEM lookup and offer pipeline.
type DialogService struct {
	nlu           NLU
	store         OrderStore
	metrics       Metrics
	logger        *slog.Logger
	maxMessageLen int
	locks         *orderLocks
	now           func() time.Time
}

type Option func(*DialogService)

func WithMetrics(m Metrics) Option {
	return func(s *DialogService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *DialogService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMaxMessageLength(n int) Option {
	return func(s *DialogService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

func NewDialogService(n NLU, store OrderStore, opts ...Option) (*DialogService, error) {
	if n == nil {
		return nil, errors.New("usecase: nlu must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: order store must not be nil")
	}
	s := &DialogService{
		nlu:           n,
		store:         store,
		metrics:       nopMetrics{},
		logger:        slog.Default(),
		maxMessageLen: defaultMaxMessage,
		locks:         newOrderLocks(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MessageInput is one inbound customer message.
type MessageInput struct {
	// OrderID is empty for the first message of a new order. The new id is
	// derived from ChatID and MessageID, so a redelivered first message maps
	// to the same order.
	OrderID string
	ChatID  string
	// MessageID is the messenger's id for the message; redeliveries carry
	// the same id.
	MessageID string
	Text      string
}

// TurnOutput is the result of one dialog turn.
type TurnOutput struct {
	OrderID             string
	Reply               string
	Status              domain.OrderStatus
	SlotsToAsk          []domain.QuestionType
	ShouldApologize     bool
	DetectedFrustration bool
	Rephrase            bool
	// Duplicate is set when the message was processed before and the stored
	// result is returned.
	Duplicate bool
}

// HandleMessage runs one dialog turn for an inbound message.
func (s *DialogService) HandleMessage(ctx context.Context, in MessageInput) (TurnOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(text) > s.maxMessageLen {
		return TurnOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	messageID := strings.TrimSpace(in.MessageID)
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		orderID = firstMessageOrderID(strings.TrimSpace(in.ChatID), messageID)
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	if messageID != "" {
		out, found, err := s.storedTurn(ctx, orderID, messageID)
		if err != nil || found {
			return out, err
		}
	}

	order, err := s.store.GetOrder(ctx, orderID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		order = domain.NewOrder(orderID, strings.TrimSpace(in.ChatID), s.now())
	case err != nil:
		return TurnOutput{}, s.storeError("order_store_read_error", orderID, err)
	}

	if !order.Status.Collecting() {
		s.metrics.ObserveTurn(string(order.Status))
		return TurnOutput{
			OrderID:    orderID,
			Reply:      dialog.StatusReply(order.Language, order.Status),
			Status:     order.Status,
			SlotsToAsk: []domain.QuestionType{},
		}, nil
	}

	lang := order.Language
	var res nlu.Result
	if choice := dialog.LanguageChoice(text); !lang.Valid() && choice.Valid() {
		lang = choice
	} else {
		res, err = s.extract(ctx, order, text)
		if err != nil {
			return s.retryTurn(order), nil
		}
	}
	if !lang.Valid() && res.Language.Valid() {
		lang = res.Language
	}

	next, out := s.advance(order, lang, res)
	next.Version = order.Version + 1
	next.UpdatedAt = s.now().UTC()

	var turn *domain.TurnRecord
	if messageID != "" {
		turn = &domain.TurnRecord{
			OrderID:             orderID,
			MessageID:           messageID,
			UserText:            text,
			Reply:               out.Reply,
			Status:              out.Status,
			SlotsToAsk:          out.SlotsToAsk,
			ShouldApologize:     out.ShouldApologize,
			DetectedFrustration: out.DetectedFrustration,
			CreatedAt:           next.UpdatedAt,
		}
	}
	if err := s.store.SaveOrder(ctx, next, turn); err != nil {
		if errors.Is(err, domain.ErrDuplicateTurn) {
			// Another process answered the same message first.
			if stored, found, readErr := s.storedTurn(ctx, orderID, messageID); readErr == nil && found {
				return stored, nil
			}
		}
		return TurnOutput{}, s.saveError(orderID, err)
	}

	s.metrics.ObserveTurn(string(out.Status))
	return out, nil
}

// advance merges the extraction into the order and decides the next stage
// and reply. It does not touch the store.
func (s *DialogService) advance(order domain.Order, lang domain.Language, res nlu.Result) (domain.Order, TurnOutput) {
	for _, slot := range res.InvalidSlots {
		s.metrics.IncError(metrics.KindInvalidSlotValue)
		s.logger.Warn("rejected slot value", "order_id", order.ID, "slot", slot)
	}

	next := order
	next.Language = lang
	next.Vehicle = order.Vehicle.Without(res.InvalidatedVehicleFields...).Merge(res.Vehicle)
	next.Part = order.Part.Merge(res.Part)

	plan := dialog.PlanNext(next.Vehicle, next.Part, order.LastQuestionType)
	frustration := dialog.DetectFrustration(res.FrustrationSignal, order.LastQuestionType, plan.Slot)
	next.Status = dialog.NextStatus(order.Status, dialog.Snapshot{
		LanguageSet:     lang.Valid(),
		VehicleComplete: next.Vehicle.IsComplete(),
		Plan:            plan,
	})
	if next.Status == domain.StatusChooseLanguage {
		// Slots are kept but nothing is asked before the language is known.
		plan = dialog.Plan{}
		frustration = dialog.Frustration{}
	}
	if next.Status == domain.StatusOEMLookup && next.Part.OEMStatus == "" {
		next.Part.OEMStatus = domain.OEMPending
	}

	next.QuestionRepeats = 0
	if plan.Rephrase {
		next.QuestionRepeats = order.QuestionRepeats + 1
	}
	next.LastQuestionType = plan.Slot

	reply := dialog.Render(dialog.Reply{
		Language:     lang,
		Status:       next.Status,
		Plan:         plan,
		Variant:      next.QuestionRepeats,
		Apologize:    frustration.Apologize,
		InvalidSlots: res.InvalidSlots,
	})
	next.LastReply = reply

	return next, TurnOutput{
		OrderID:             order.ID,
		Reply:               reply,
		Status:              next.Status,
		SlotsToAsk:          plan.SlotsToAsk(),
		ShouldApologize:     frustration.Apologize,
		DetectedFrustration: frustration.Detected,
		Rephrase:            plan.Rephrase,
	}
}

// extract calls the NLU. A malformed response counts as an empty
// extraction; any other failure is returned.
func (s *DialogService) extract(ctx context.Context, order domain.Order, text string) (nlu.Result, error) {
	start := s.now()
	res, err := s.nlu.Extract(ctx, nlu.Request{
		UserText:     text,
		Language:     order.Language,
		PriorVehicle: order.Vehicle,
		PriorPart:    order.Part,
	})
	elapsed := s.now().Sub(start)

	switch {
	case err == nil:
		s.metrics.ObserveNLU(metrics.OutcomeOK, elapsed)
		return res, nil
	case errors.Is(err, nlu.ErrMalformedResponse):
		s.metrics.ObserveNLU(metrics.OutcomeMalformed, elapsed)
		s.metrics.IncError(metrics.KindNLUMalformed)
		s.logger.Warn("nlu returned malformed response", "order_id", order.ID, "err", err)
		return nlu.Result{}, nil
	default:
		s.metrics.ObserveNLU(metrics.OutcomeUnavailable, elapsed)
		s.metrics.IncError(metrics.KindNLUUnavailable)
		s.logger.Warn("nlu unavailable", "order_id", order.ID, "err", err)
		return nlu.Result{}, err
	}
}

// retryTurn answers without changing the order: same status, same pending
// question, and a request to repeat the message.
func (s *DialogService) retryTurn(order domain.Order) TurnOutput {
	plan := dialog.Plan{Slot: order.LastQuestionType}
	return TurnOutput{
		OrderID: order.ID,
		Reply: dialog.Render(dialog.Reply{
			Language: order.Language,
			Status:   order.Status,
			Plan:     plan,
			Retry:    true,
		}),
		Status:     order.Status,
		SlotsToAsk: plan.SlotsToAsk(),
	}
}

func (s *DialogService) storedTurn(ctx context.Context, orderID, messageID string) (TurnOutput, bool, error) {
	rec, err := s.store.GetTurn(ctx, orderID, messageID)
	if errors.Is(err, domain.ErrNotFound) {
		return TurnOutput{}, false, nil
	}
	if err != nil {
		return TurnOutput{}, false, s.storeError("order_store_read_error", orderID, err)
	}
	s.metrics.IncDuplicate()
	slots := rec.SlotsToAsk
	if slots == nil {
		slots = []domain.QuestionType{}
	}
	return TurnOutput{
		OrderID:             orderID,
		Reply:               rec.Reply,
		Status:              rec.Status,
		SlotsToAsk:          slots,
		ShouldApologize:     rec.ShouldApologize,
		DetectedFrustration: rec.DetectedFrustration,
		Duplicate:           true,
	}, true, nil
}

func (s *DialogService) saveError(orderID string, err error) error {
	if errors.Is(err, domain.ErrOrderConflict) {
		s.metrics.IncError(metrics.KindOrderConflict)
		s.logger.Warn("order changed concurrently", "order_id", orderID)
		return newError(ErrorConflict, "order_version_conflict", err)
	}
	return s.storeError("order_store_write_error", orderID, err)
}

func (s *DialogService) storeError(reason, orderID string, err error) error {
	s.metrics.IncError(metrics.KindStoreUnavailable)
	s.logger.Error("order store failed", "order_id", orderID, "reason", reason, "err", err)
	return newError(ErrorStoreUnavailable, reason, fmt.Errorf("order %s: %w", orderID, err))
}

type nopMetrics struct{}

func (nopMetrics) ObserveTurn(string)               {}
func (nopMetrics) IncError(string)                  {}
func (nopMetrics) IncDuplicate()                    {}
func (nopMetrics) ObserveNLU(string, time.Duration) {}

var newUUID = func() string {
	return uuid.NewString()
}

// firstMessageOrderID names the order opened by a message that carries no
// order id. Without a message id there is nothing to deduplicate on.
func firstMessageOrderID(chatID, messageID string) string {
	if messageID == "" {
		return newUUID()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chatID+"/"+messageID)).String()
}

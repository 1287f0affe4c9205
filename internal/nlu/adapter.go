// Package nlu turns a free-text customer message into slot values by asking
// an LLM for a strictly shaped JSON document.
package nlu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parts-order-bot/internal/domain"
	"parts-order-bot/internal/integrations/paramstore"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 2
	defaultBackoff     = 250 * time.Millisecond
)

var (
	// ErrUnavailable means the extraction service could not be reached in
	// time. The turn should ask the customer to repeat.
	ErrUnavailable = errors.New("nlu: unavailable")
	// ErrMalformedResponse means the service answered with something that
	// does not satisfy the extraction contract.
	ErrMalformedResponse = errors.New("nlu: malformed response")
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Request is the input of one extraction.
type Request struct {
	UserText     string
	Language     domain.Language
	PriorVehicle domain.Vehicle
	PriorPart    domain.Part
}

// Result is the validated output of one extraction.
type Result struct {
	Intent                   string
	Language                 domain.Language
	Vehicle                  domain.Vehicle
	Part                     domain.PartUpdate
	FrustrationSignal        bool
	InvalidatedVehicleFields []string
	// InvalidSlots names vehicle fields whose extracted values were rejected.
	InvalidSlots []string
}

// Adapter implements slot extraction on top of a chat completion client.
type Adapter struct {
	llm         LLMClient
	params      ParamGetter
	paramPrefix string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Adapter)

// WithTimeout bounds a whole extraction including retries.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxAttempts sets how often a transient failure is tried in total.
func WithMaxAttempts(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay; it doubles on every retry.
func WithBackoff(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.backoff = d
		}
	}
}

func New(llm LLMClient, params ParamGetter, paramPrefix string, opts ...Option) (*Adapter, error) {
	if llm == nil {
		return nil, errors.New("nlu: llm client must not be nil")
	}
	if params == nil {
		return nil, errors.New("nlu: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("nlu: parameter prefix must not be empty")
	}
	a := &Adapter{
		llm:         llm,
		params:      params,
		paramPrefix: paramPrefix,
		timeout:     defaultTimeout,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Extract runs one extraction. Errors wrap ErrUnavailable or
// ErrMalformedResponse.
func (a *Adapter) Extract(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	model, rules, err := a.loadConfig(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	messages := buildMessages(rules, req)

	var raw string
	for attempt := 1; ; attempt++ {
		raw, err = a.llm.Chat(ctx, model, messages)
		if err == nil {
			break
		}
		if attempt >= a.maxAttempts || !transient(err) || ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if sleepErr := a.sleep(ctx, a.backoff<<(attempt-1)); sleepErr != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, sleepErr)
		}
	}

	res, err := parseResult(raw, a.now())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return res, nil
}

func (a *Adapter) loadConfig(ctx context.Context) (model, rules string, err error) {
	model, err = a.params.GetParameter(ctx, a.paramPrefix+"/config/openai_model")
	if err != nil {
		return "", "", fmt.Errorf("nlu: load openai model: %w", err)
	}
	rules, err = a.params.GetParameter(ctx, a.paramPrefix+"/prompts/nlu")
	if errors.Is(err, paramstore.ErrNotFound) {
		return model, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("nlu: load extraction prompt: %w", err)
	}
	return model, rules, nil
}

// transient reports whether retrying the call may help. Rejected requests
// (4xx other than 429) will fail the same way again.
func transient(err error) bool {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return true
	}
	code := statusErr.HTTPStatusCode()
	return code == 429 || code >= 500
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupiduntilnot/chatrelay/internal/model"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("completion circuit open")

var errProviderPanic = errors.New("completion provider panicked")

// Error classes counted by the breaker. Canceled calls are never counted.
const (
	ClassTimeout       = "timeout"
	ClassCanceled      = "canceled"
	ClassEmptyResponse = "empty_response"
	ClassProviderAPI   = "provider_api"
)

// Classify maps a provider error to a breaker class.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	case errors.Is(err, model.ErrEmptyResponse):
		return ClassEmptyResponse
	default:
		return ClassProviderAPI
	}
}

// Guard wraps a provider with a circuit breaker.
type Guard struct {
	next    model.Provider
	breaker *CircuitBreaker
	logger  zerolog.Logger
	now     func() time.Time
}

// NewGuard wraps next. A nil breaker disables the guard and returns next
// unchanged.
func NewGuard(next model.Provider, breaker *CircuitBreaker, logger zerolog.Logger) model.Provider {
	if breaker == nil {
		return next
	}
	return &Guard{next: next, breaker: breaker, logger: logger, now: time.Now}
}

func (g *Guard) ChatCompletion(ctx context.Context, messages []model.Message) (model.CompletionResponse, error) {
	allowed, probe := g.breaker.Allow(g.now())
	if !allowed {
		return model.CompletionResponse{}, fmt.Errorf("%w (class=%s)", ErrCircuitOpen, g.breaker.OpenedClass())
	}
	if probe {
		g.logger.Info().Str("error_class", g.breaker.OpenedClass()).Msg("circuit half-open, probing completion api")
	}

	recorded := false
	defer func() {
		// still release the probe slot when next panics
		if !recorded {
			g.breaker.Record(errProviderPanic, probe, g.now())
		}
	}()

	resp, err := g.next.ChatCompletion(ctx, messages)
	recorded = true
	class, tr := g.breaker.Record(err, probe, g.now())
	switch tr {
	case Opened:
		g.logger.Warn().
			Str("error_class", class).
			Int("threshold", g.breaker.Threshold).
			Dur("cooldown", g.breaker.Cooldown).
			Msg("circuit opened")
	case Closed:
		g.logger.Info().Msg("circuit closed")
	}
	return resp, err
}

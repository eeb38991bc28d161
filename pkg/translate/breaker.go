package translate

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker around a backend.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// BreakerTranslator stops calling a failing backend until it has had time to
// recover. While open, Translate fails immediately with gobreaker.ErrOpenState.
type BreakerTranslator struct {
	next Translator
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerTranslator wraps next in a circuit breaker named after engine.
func NewBreakerTranslator(next Translator, engine EngineType, s BreakerSettings, logger *logrus.Logger) *BreakerTranslator {
	if logger == nil {
		logger = logrus.New()
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	breakerState.WithLabelValues(string(engine)).Set(float64(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(engine),
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			logger.WithFields(logrus.Fields{
				"engine": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Fallback circuit breaker changed state")
		},
		// A caller giving up is not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerTranslator{next: next, cb: cb}
}

// Translate calls the backend unless the breaker is open.
func (b *BreakerTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.Translate(ctx, text, sourceLang, targetLang)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// CheckHealth reports an open breaker as unhealthy without calling the backend.
func (b *BreakerTranslator) CheckHealth(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return gobreaker.ErrOpenState
	}
	return b.next.CheckHealth(ctx)
}

func (b *BreakerTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	return b.next.SupportedLanguages(ctx)
}

// State returns the breaker's current state.
func (b *BreakerTranslator) State() gobreaker.State {
	return b.cb.State()
}

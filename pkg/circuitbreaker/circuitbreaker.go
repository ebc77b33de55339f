package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Config struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts are reset.
	Interval time.Duration
	// Timeout the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures that trip the breaker.
	ConsecutiveFailures uint32
}

func DefaultConfig() Config {
	return Config{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker guards calls to a remote collaborator.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func New(name string, cfg Config, log *zap.Logger) *Breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	if log == nil {
		log = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Execute runs fn through the breaker. A nil breaker runs fn directly.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// IsOpen reports whether err was produced by the breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

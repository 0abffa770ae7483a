package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit around provider calls.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerConfig trips after five consecutive indeterminate outcomes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "vtu-provider",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// BreakerGateway short-circuits calls while the provider is unhealthy. A
// rejected call never reaches the provider, so it is reported as declined.
type BreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewBreakerGateway wraps inner with a circuit breaker. Only indeterminate
// outcomes count as failures; an explicit decline is a healthy answer.
func NewBreakerGateway(inner Gateway, cfg BreakerConfig, logger *slog.Logger) *BreakerGateway {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	g := &BreakerGateway{inner: inner, logger: logger}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrIndeterminate)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return g
}

// Resolve delegates to the wrapped gateway.
func (g *BreakerGateway) Resolve(req Request) (Resolved, error) {
	return g.inner.Resolve(req)
}

// Fulfill runs the call through the breaker.
func (g *BreakerGateway) Fulfill(ctx context.Context, req Request) (Receipt, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Fulfill(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Receipt{}, &DeclinedError{Reason: "provider unavailable"}
		}
		return Receipt{}, err
	}
	receipt, _ := out.(Receipt)
	return receipt, nil
}

// State exposes the breaker state for health reporting.
func (g *BreakerGateway) State() string {
	return g.breaker.State().String()
}

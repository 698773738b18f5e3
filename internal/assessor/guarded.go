package assessor

import (
	"context"
	"errors"

	"github.com/anime-shed/microscan-go/internal/resilience"
)

// Guarded wraps an assessor with a circuit breaker so a failing provider is
// skipped until it recovers
type Guarded struct {
	inner   Assessor
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps inner with a breaker built from config
func NewGuarded(inner Assessor, config resilience.CircuitBreakerConfig) *Guarded {
	return &Guarded{inner: inner, breaker: resilience.NewCircuitBreaker(config)}
}

func (g *Guarded) Name() string { return g.inner.Name() }

// Breaker exposes the circuit state for health reporting
func (g *Guarded) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

func (g *Guarded) Assess(ctx context.Context, in Input) (*Assessment, error) {
	var out *Assessment
	err := g.breaker.Call(func() error {
		a, err := g.inner.Assess(ctx, in)
		if err != nil {
			// Caller cancellation says nothing about the provider's health
			if ctx.Err() == context.Canceled {
				return nil
			}
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New("assessor returned no assessment")
	}
	return out, nil
}

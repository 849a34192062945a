package tool

import (
	"context"

	"github.com/jllopis/taskbridge/pkg/resilience"
)

// BreakerTransport short-circuits Execute while the wrapped server keeps failing.
// Discovery and listing pass through untouched.
type BreakerTransport struct {
	Transport
	breaker *resilience.CircuitBreaker
}

// NewBreakerTransport wraps next with cb.
func NewBreakerTransport(next Transport, cb *resilience.CircuitBreaker) *BreakerTransport {
	return &BreakerTransport{Transport: next, breaker: cb}
}

// Execute runs the call through the circuit breaker.
func (b *BreakerTransport) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	var out any
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = b.Transport.Execute(ctx, name, args)
		return err
	})
	return out, err
}

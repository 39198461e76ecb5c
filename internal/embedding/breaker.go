package embedding

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

const (
	breakerMaxFailures = 3
	breakerTimeout     = 30 * time.Second
)

// breakerProvider wraps a Provider with a circuit breaker so a flapping
// upstream fails fast instead of holding request slots on timeouts.
// Open-circuit rejections surface as ProviderError like any other
// provider failure; no retries happen here.
type breakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker decorates p with a circuit breaker. The circuit opens after
// breakerMaxFailures consecutive failures and probes again after
// breakerTimeout.
func WithBreaker(p Provider) Provider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "embedding-provider",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		Timeout: breakerTimeout,
	})
	return &breakerProvider{inner: p, breaker: cb}
}

func (b *breakerProvider) ModelVersion() string { return b.inner.ModelVersion() }
func (b *breakerProvider) Dimensions() int      { return b.inner.Dimensions() }

func (b *breakerProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		if IsProviderError(err) {
			return nil, err
		}
		// gobreaker's own rejections (open circuit, too many requests).
		return nil, &ProviderError{Err: err}
	}
	return result.([]float32), nil
}

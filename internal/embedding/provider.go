// Package embedding provides the boundary to the hosted embedding provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Provider turns text into a fixed-length dense vector. Implementations
// must not retry or cache; retry policy belongs to the caller and caching
// is the embedding store's job via fingerprint comparison.
type Provider interface {
	// Embed returns the embedding for text. The returned slice has
	// exactly Dimensions() components.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelVersion identifies the model producing the vectors. Stored
	// alongside each embedding for staleness detection.
	ModelVersion() string

	// Dimensions is the embedding vector size.
	Dimensions() int
}

// ProviderError wraps any failure of the embedding provider: rate limits,
// transport errors, malformed responses, open circuit.
type ProviderError struct {
	Err        error
	StatusCode int // 0 when the failure happened before an HTTP response
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding provider: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

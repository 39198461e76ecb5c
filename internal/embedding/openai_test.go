package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, dims int) Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		ModelName:  "test-embed-model",
		Dimensions: dims,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func embedResponse(vec []float32) []byte {
	body, _ := json.Marshal(map[string]any{
		"data":  []map[string]any{{"embedding": vec, "index": 0}},
		"model": "test-embed-model",
	})
	return body
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var gotAuth, gotPath string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello world", req.Input)
		assert.Equal(t, "test-embed-model", req.Model)
		assert.Equal(t, "float", req.EncodingFormat)

		w.Write(embedResponse([]float32{0.1, 0.2, 0.3}))
	}, 3)

	vec, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/embeddings", gotPath)
}

func TestOpenAIProvider_RateLimitSurfacesProviderError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}, 3)

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsProviderError(err))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Contains(t, pe.Error(), "rate limit exceeded")
}

func TestOpenAIProvider_EmptyDataIsError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [], "model": "test-embed-model"}`))
	}, 3)

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
}

func TestOpenAIProvider_DimensionMismatchIsError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(embedResponse([]float32{0.1, 0.2}))
	}, 3)

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.Contains(t, err.Error(), "2 dimensions")
}

func TestOpenAIProvider_ConfigValidation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://x", ModelName: "m", Dimensions: 3})
	assert.Error(t, err) // missing key

	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k", ModelName: "m", Dimensions: 3})
	assert.Error(t, err) // missing base URL

	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: "http://x", Dimensions: 3})
	assert.Error(t, err) // missing model

	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: "http://x", ModelName: "m"})
	assert.Error(t, err) // missing dimensions
}

func TestWithBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	inner := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}, 3)

	p := WithBreaker(inner)
	ctx := context.Background()

	for i := 0; i < breakerMaxFailures; i++ {
		_, err := p.Embed(ctx, "hello")
		require.Error(t, err)
		assert.True(t, IsProviderError(err))
	}
	upstreamCalls := calls.Load()

	// Circuit is open now: failures surface without reaching upstream.
	_, err := p.Embed(ctx, "hello")
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.Equal(t, upstreamCalls, calls.Load())
}

func TestWithBreaker_PassesThroughSuccess(t *testing.T) {
	inner := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(embedResponse([]float32{1, 0, 0}))
	}, 3)

	p := WithBreaker(inner)
	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, inner.ModelVersion(), p.ModelVersion())
	assert.Equal(t, inner.Dimensions(), p.Dimensions())
}

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const openAIHTTPTimeout = 30 * time.Second

// OpenAIConfig configures the OpenAI-compatible embedding provider.
// Any endpoint speaking the /embeddings REST shape works (OpenAI,
// LiteLLM proxies, local servers).
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	ModelName  string
	Dimensions int
	HTTPClient *http.Client // optional, mainly for tests
}

type openAIProvider struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	modelName  string
	dimensions int
}

type openAIEmbedRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIProvider creates a Provider backed by an OpenAI-compatible
// embeddings endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base URL is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIHTTPTimeout}
	}

	return &openAIProvider{
		client:     client,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		modelName:  cfg.ModelName,
		dimensions: cfg.Dimensions,
	}, nil
}

func (p *openAIProvider) ModelVersion() string { return p.modelName }
func (p *openAIProvider) Dimensions() int      { return p.dimensions }

func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{
		Input:          text,
		Model:          p.modelName,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("marshal embedding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("create embedding request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("send embedding request to %s: %w", p.baseURL, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Err: fmt.Errorf("embedding API error (model=%s): %s",
				p.modelName, strings.TrimSpace(string(bodySnippet))),
		}
	}

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("decode embedding response from %s: %w", p.baseURL, err)}
	}
	if len(embedResp.Data) == 0 {
		return nil, &ProviderError{Err: fmt.Errorf("embedding API returned no results for model %s", p.modelName)}
	}

	// Sort by index to preserve order
	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	vec := embedResp.Data[0].Embedding
	if len(vec) != p.dimensions {
		return nil, &ProviderError{Err: fmt.Errorf("embedding API returned %d dimensions, expected %d (model=%s)",
			len(vec), p.dimensions, p.modelName)}
	}
	return vec, nil
}

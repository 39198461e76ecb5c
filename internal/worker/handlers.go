// Package worker provides the HTTP service for kinship.
package worker

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/kinshiphq/kinship/internal/embedding"
	"github.com/kinshiphq/kinship/internal/indexer"
	"github.com/kinshiphq/kinship/internal/search"
)

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   msg,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON error response")
	}
}

// handleHealth handles health check requests.
// Returns 200 OK immediately (even during init).
// Use /api/ready for full readiness check.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.GetInitError(); err != nil {
		status = "error"
	}
	writeJSON(w, map[string]interface{}{
		"status":  status,
		"version": s.version,
	})
}

// handleReady handles readiness check requests.
// Returns 200 only when fully initialized, 503 otherwise.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		if err := s.GetInitError(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Error(w, "service initializing", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// requireReady is middleware that returns 503 if service isn't ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				http.Error(w, "service initialization failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
			http.Error(w, "service initializing", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BatchEmbedRequest is the request body for the batch embedding endpoint.
// ContactID, when set, restricts the run to that contact (the
// re-embed-on-write path).
type BatchEmbedRequest struct {
	ContactID string `json:"contact_id,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// BatchEmbedResults is the results payload of a batch run.
type BatchEmbedResults struct {
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// BatchEmbedResponse is the response for the batch embedding endpoint.
// Success stays true when individual contacts errored; partial success is
// the expected common case.
type BatchEmbedResponse struct {
	Success bool              `json:"success"`
	Results BatchEmbedResults `json:"results"`
}

// handleBatchEmbed runs one embedding batch for the caller's scope.
func (s *Service) handleBatchEmbed(w http.ResponseWriter, r *http.Request) {
	var req BatchEmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var contactIDs []string
	if req.ContactID != "" {
		contactIDs = []string{req.ContactID}
	}
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = s.config.BatchSize
	}
	if batchSize < 0 {
		writeError(w, http.StatusBadRequest, "batch_size must be positive")
		return
	}

	scope := ScopeFromContext(r.Context())
	outcome, err := s.indexer.Run(r.Context(), scope, contactIDs, batchSize)
	if err != nil {
		if errors.Is(err, indexer.ErrInvalidBatchSize) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Sweep selection hit the store; not the caller's fault.
		log.Error().Err(err).Msg("Batch run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, BatchEmbedResponse{
		Success: true,
		Results: BatchEmbedResults{
			Processed: outcome.Processed,
			Created:   outcome.Created,
			Updated:   outcome.Updated,
			Skipped:   outcome.Skipped,
			Errors:    outcome.ErrorStrings(),
		},
	})
}

// SearchRequest is the request body for the semantic search endpoint.
// SimilarityThreshold is a pointer so an explicit 0 can be told apart
// from "use the default".
type SearchRequest struct {
	Query               string   `json:"query"`
	Limit               int      `json:"limit,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

// handleSearch serves semantic similarity search over the caller's contacts.
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	threshold := -1.0
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	scope := ScopeFromContext(r.Context())
	result, err := s.searchService.Search(r.Context(), scope, req.Query, req.Limit, threshold)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, err.Error())
		case embedding.IsProviderError(err):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			log.Error().Err(err).Msg("Search failed")
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"query":   result.Query,
		"results": result.Matches,
		"count":   result.Count,
	})
}

// handleEmbeddingStats reports embedding coverage for the caller's scope.
func (s *Service) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	scope := ScopeFromContext(r.Context())
	stats, err := s.embeddingStore.GetStats(r.Context(), scope, s.provider.ModelVersion())
	if err != nil {
		log.Error().Err(err).Msg("Stats query failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"success":       true,
		"stats":         stats,
		"model_version": s.provider.ModelVersion(),
	})
}

// Package search provides semantic similarity search over contact embeddings.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/kinshiphq/kinship/internal/embedding"
	"github.com/kinshiphq/kinship/pkg/models"
)

// ErrEmptyQuery is returned when the query text is missing or blank.
// Distinct from "no results", which is a successful empty list.
var ErrEmptyQuery = errors.New("query text must not be empty")

// VectorSearcher is the read surface the service needs from the
// embedding store.
type VectorSearcher interface {
	FindSimilar(ctx context.Context, userID string, queryVec []float32, limit int, threshold float64) ([]models.SimilarityMatch, error)
}

// Result is the outcome of one search request.
type Result struct {
	Query   string                   `json:"query"`
	Matches []models.SimilarityMatch `json:"results"`
	Count   int                      `json:"count"`
}

// Service embeds free-form queries and ranks contacts by similarity.
type Service struct {
	provider         embedding.Provider
	store            VectorSearcher
	group            singleflight.Group
	defaultLimit     int
	defaultThreshold float64
}

// New creates a search service. defaultLimit and defaultThreshold apply
// when a request leaves them unset.
func New(provider embedding.Provider, store VectorSearcher, defaultLimit int, defaultThreshold float64) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if defaultThreshold <= 0 {
		defaultThreshold = 0.7
	}
	return &Service{
		provider:         provider,
		store:            store,
		defaultLimit:     defaultLimit,
		defaultThreshold: defaultThreshold,
	}
}

// Search embeds query and returns contacts of userID above threshold,
// ranked by similarity. limit <= 0 and threshold < 0 select the configured
// defaults. A provider failure is fatal to the request; an empty match
// list is success. Identical concurrent requests are coalesced.
func (s *Service) Search(ctx context.Context, userID, query string, limit int, threshold float64) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if threshold < 0 {
		threshold = s.defaultThreshold
	}

	key := fmt.Sprintf("%s|%d|%.4f|%s", userID, limit, threshold, query)
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.search(ctx, userID, query, limit, threshold)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("user", userID).Msg("Coalesced duplicate search request")
	}
	return v.(*Result), nil
}

func (s *Service) search(ctx context.Context, userID, query string, limit int, threshold float64) (*Result, error) {
	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.FindSimilar(ctx, userID, vec, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	if matches == nil {
		matches = []models.SimilarityMatch{}
	}

	return &Result{Query: query, Matches: matches, Count: len(matches)}, nil
}

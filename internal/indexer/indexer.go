// Package indexer drives the embedding maintenance pipeline: compose
// profile text, detect change, embed, upsert — in bounded batches with
// per-contact failure isolation.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kinshiphq/kinship/internal/embedding"
	"github.com/kinshiphq/kinship/internal/profile"
	"github.com/kinshiphq/kinship/pkg/models"
)

// ErrInvalidBatchSize rejects a sweep request with a non-positive batch
// size. The only request-level validation error Run produces; everything
// else it returns is a store failure.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// ContactLister enumerates contacts eligible for an embedding sweep.
type ContactLister interface {
	// ListEmbeddable returns up to limit non-deleted contact IDs owned by
	// userID in stable order.
	ListEmbeddable(ctx context.Context, userID string, limit int) ([]string, error)
}

// EmbeddingStore is the write side of the pipeline.
type EmbeddingStore interface {
	GetStored(ctx context.Context, contactID string) (*profile.StoredEmbedding, error)
	Upsert(ctx context.Context, contactID, userID string, vector []float32, fingerprint, sourceText, modelVersion string) (created bool, err error)
}

// Config holds orchestrator tuning knobs.
type Config struct {
	// RatePerSec limits embedding provider calls. Zero disables limiting.
	RatePerSec float64

	// Workers bounds parallel per-contact processing. Values <= 1 mean
	// strictly sequential processing.
	Workers int

	// SourceTextLimit truncates the stored debug copy of composed text.
	SourceTextLimit int
}

// Indexer orchestrates the composer → detector → provider → store pipeline.
type Indexer struct {
	composer *profile.Composer
	lister   ContactLister
	store    EmbeddingStore
	provider embedding.Provider
	limiter  *rate.Limiter
	workers  int
	textCap  int
}

// New creates an Indexer.
func New(composer *profile.Composer, lister ContactLister, store EmbeddingStore, provider embedding.Provider, cfg Config) *Indexer {
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	textCap := cfg.SourceTextLimit
	if textCap <= 0 {
		textCap = 500
	}
	return &Indexer{
		composer: composer,
		lister:   lister,
		store:    store,
		provider: provider,
		limiter:  limiter,
		workers:  workers,
		textCap:  textCap,
	}
}

// Run executes one embedding batch for userID. When contactIDs is non-empty
// only those contacts are processed (the re-embed-on-write path); otherwise
// up to batchSize contacts are selected for a maintenance sweep. One
// contact's failure never aborts the batch: provider and store errors are
// recorded per contact and processing continues. The returned error is
// non-nil only when the request itself is invalid.
func (ix *Indexer) Run(ctx context.Context, userID string, contactIDs []string, batchSize int) (*models.BatchOutcome, error) {
	ids := contactIDs
	if len(ids) == 0 {
		if batchSize <= 0 {
			return nil, fmt.Errorf("%w, got %d", ErrInvalidBatchSize, batchSize)
		}
		var err error
		ids, err = ix.lister.ListEmbeddable(ctx, userID, batchSize)
		if err != nil {
			return nil, fmt.Errorf("select contacts for sweep: %w", err)
		}
	}

	outcome := &models.BatchOutcome{Errors: []models.ItemError{}}
	if len(ids) == 0 {
		return outcome, nil
	}

	if ix.workers <= 1 {
		for _, id := range ids {
			if ctx.Err() != nil {
				break // unprocessed contacts stay stale for the next sweep
			}
			ix.processOne(ctx, userID, id, outcome, nil)
		}
	} else {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ix.workers)
		for _, id := range ids {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				ix.processOne(gctx, userID, id, outcome, &mu)
				return nil
			})
		}
		_ = g.Wait() // workers never return errors; failures land in outcome
	}

	log.Info().
		Str("user", userID).
		Int("processed", outcome.Processed).
		Int("created", outcome.Created).
		Int("updated", outcome.Updated).
		Int("skipped", outcome.Skipped).
		Int("errors", len(outcome.Errors)).
		Msg("Embedding batch complete")

	return outcome, nil
}

// processOne runs the pipeline for a single contact. mu guards outcome when
// processing is parallel; it is nil in sequential mode.
func (ix *Indexer) processOne(ctx context.Context, userID, contactID string, outcome *models.BatchOutcome, mu *sync.Mutex) {
	record := func(fn func()) {
		if mu != nil {
			mu.Lock()
			defer mu.Unlock()
		}
		fn()
	}
	fail := func(err error) {
		log.Warn().Err(err).Str("contact", contactID).Msg("Embedding failed for contact")
		record(func() {
			outcome.Errors = append(outcome.Errors, models.ItemError{ContactID: contactID, Message: err.Error()})
		})
	}

	text, err := ix.composer.Compose(ctx, contactID, userID)
	if err != nil {
		fail(fmt.Errorf("compose profile: %w", err))
		return
	}
	if text == "" {
		record(func() { outcome.Skipped++ })
		return
	}

	stored, err := ix.store.GetStored(ctx, contactID)
	if err != nil {
		fail(err)
		return
	}
	fingerprint, needsUpdate := profile.NeedsReembed(text, stored, ix.provider.ModelVersion())
	if !needsUpdate {
		record(func() { outcome.Skipped++ })
		return
	}

	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			fail(fmt.Errorf("rate limit wait: %w", err))
			return
		}
	}

	vector, err := ix.provider.Embed(ctx, text)
	if err != nil {
		fail(err)
		return
	}

	created, err := ix.store.Upsert(ctx, contactID, userID, vector, fingerprint, truncate(text, ix.textCap), ix.provider.ModelVersion())
	if err != nil {
		fail(err)
		return
	}

	record(func() {
		if created {
			outcome.Created++
		} else {
			outcome.Updated++
		}
		outcome.Processed++
	})
}

// truncate cuts s to at most n bytes, backing up so the cut never splits
// a rune. The stored copy must stay valid UTF-8 or the upsert fails.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kinshiphq/kinship/internal/config"
	"github.com/kinshiphq/kinship/internal/db/gorm"
	"github.com/kinshiphq/kinship/internal/indexer"
	"github.com/kinshiphq/kinship/internal/profile"
	"github.com/kinshiphq/kinship/internal/search"
	"github.com/kinshiphq/kinship/pkg/models"
)

// fakeBackend is an in-memory stand-in for the relational and vector
// stores, shared by the composer, the indexer, and the search service.
type fakeBackend struct {
	mu       sync.Mutex
	contacts map[string]*models.Contact
	notes    map[string][]models.Note
	stored   map[string]*profile.StoredEmbedding
	matches  []models.SimilarityMatch
	stats    *gorm.Stats
	listErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		contacts: map[string]*models.Contact{},
		notes:    map[string][]models.Note{},
		stored:   map[string]*profile.StoredEmbedding{},
		stats:    &gorm.Stats{},
	}
}

func (b *fakeBackend) addContact(id, name string) {
	b.contacts[id] = &models.Contact{ID: id, UserID: config.DefaultUserID, Name: name}
}

func (b *fakeBackend) GetContact(_ context.Context, contactID, userID string) (*models.Contact, error) {
	c, ok := b.contacts[contactID]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	return c, nil
}

func (b *fakeBackend) RecentNotes(_ context.Context, contactID string, limit int) ([]models.Note, error) {
	notes := b.notes[contactID]
	if len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

func (b *fakeBackend) TagNames(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (b *fakeBackend) ListEmbeddable(_ context.Context, userID string, limit int) ([]string, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	var ids []string
	for id, c := range b.contacts {
		if c.UserID == userID {
			ids = append(ids, id)
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (b *fakeBackend) GetStored(_ context.Context, contactID string) (*profile.StoredEmbedding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stored[contactID], nil
}

func (b *fakeBackend) Upsert(_ context.Context, contactID, _ string, _ []float32, fingerprint, _ string, modelVersion string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, existed := b.stored[contactID]
	b.stored[contactID] = &profile.StoredEmbedding{Fingerprint: fingerprint, ModelVersion: modelVersion}
	return !existed, nil
}

func (b *fakeBackend) FindSimilar(_ context.Context, _ string, _ []float32, _ int, _ float64) ([]models.SimilarityMatch, error) {
	return b.matches, nil
}

func (b *fakeBackend) GetStats(_ context.Context, _, _ string) (*gorm.Stats, error) {
	return b.stats, nil
}

// fakeEmbedProvider satisfies embedding.Provider without the network.
type fakeEmbedProvider struct {
	err error
}

func (p *fakeEmbedProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []float32{1, 0, 0}, nil
}

func (p *fakeEmbedProvider) ModelVersion() string { return "test-model-v1" }
func (p *fakeEmbedProvider) Dimensions() int      { return 3 }

// newTestService wires a Service around in-memory fakes, skipping
// deferred initialization.
func newTestService(t *testing.T, token string, backend *fakeBackend, provider *fakeEmbedProvider) *Service {
	t.Helper()

	cfg := config.Default()
	cfg.APIToken = token

	svc := &Service{
		version: "test",
		config:  cfg,
		router:  chi.NewRouter(),
		auth:    NewTokenAuth(token, cfg.UserID),
	}
	composer := profile.NewComposer(backend, config.NotesPerProfile)
	svc.provider = provider
	svc.embeddingStore = backend
	svc.indexer = indexer.New(composer, backend, backend, provider, indexer.Config{})
	svc.searchService = search.New(provider, backend, cfg.SearchLimit, cfg.SimilarityThreshold)

	svc.setupMiddleware()
	svc.setupRoutes()
	svc.ready.Store(true)
	return svc
}

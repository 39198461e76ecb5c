// Package worker provides the HTTP service for kinship.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kinshiphq/kinship/internal/config"
	"github.com/kinshiphq/kinship/internal/db/gorm"
	"github.com/kinshiphq/kinship/internal/embedding"
	"github.com/kinshiphq/kinship/internal/indexer"
	"github.com/kinshiphq/kinship/internal/profile"
	"github.com/kinshiphq/kinship/internal/search"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 60 * time.Second

	// MaxRequestBody bounds incoming request bodies.
	MaxRequestBody = 1 << 20 // 1 MB

	// ReadyPollInterval is how often WaitReady checks initialization status.
	ReadyPollInterval = 50 * time.Millisecond
)

// StatsStore is the coverage-stats read surface handlers use. Satisfied
// by *gorm.EmbeddingStore; swapped for a fake in tests.
type StatsStore interface {
	GetStats(ctx context.Context, userID, modelVersion string) (*gorm.Stats, error)
}

// Service is the main HTTP service orchestrator. Each request is a
// stateless unit of work; all shared state lives in PostgreSQL.
type Service struct {
	version string
	config  *config.Config

	// Storage
	store          *gorm.Store
	contactStore   *gorm.ContactStore
	embeddingStore StatsStore

	// Domain services
	provider      embedding.Provider
	indexer       *indexer.Indexer
	searchService *search.Service

	// HTTP server
	router    *chi.Mux
	server    *http.Server
	auth      *TokenAuth
	startTime time.Time

	// Initialization state (deferred init: health endpoint works
	// immediately, storage and provider wiring happen in background)
	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates a new service with deferred initialization.
func NewService(version string, cfg *config.Config) *Service {
	svc := &Service{
		version:   version,
		config:    cfg,
		router:    chi.NewRouter(),
		auth:      NewTokenAuth(cfg.APIToken, cfg.UserID),
		startTime: time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc
}

// initializeAsync performs heavy initialization in the background.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization...")

	store, err := gorm.NewStore(gorm.Config{
		DSN:      s.config.DatabaseURL,
		MaxConns: s.config.MaxConns,
		LogLevel: gormlogger.Silent,
	}, s.config.EmbeddingDimensions)
	if err != nil {
		s.setInitError(fmt.Errorf("init database: %w", err))
		return
	}

	provider, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		BaseURL:    s.config.EmbeddingBaseURL,
		APIKey:     s.config.EmbeddingAPIKey,
		ModelName:  s.config.EmbeddingModelName,
		Dimensions: s.config.EmbeddingDimensions,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("init embedding provider: %w", err))
		return
	}
	provider = embedding.WithBreaker(provider)

	contactStore := gorm.NewContactStore(store)
	embeddingStore := gorm.NewEmbeddingStore(store)
	composer := profile.NewComposer(contactStore, config.NotesPerProfile)

	s.initMu.Lock()
	s.store = store
	s.contactStore = contactStore
	s.embeddingStore = embeddingStore
	s.provider = provider
	s.indexer = indexer.New(composer, contactStore, embeddingStore, provider, indexer.Config{
		RatePerSec:      s.config.EmbedRatePerSec,
		Workers:         s.config.EmbedWorkers,
		SourceTextLimit: config.SourceTextLimit,
	})
	s.searchService = search.New(provider, embeddingStore, s.config.SearchLimit, s.config.SimilarityThreshold)
	s.initMu.Unlock()

	s.ready.Store(true)
	log.Info().
		Str("model", provider.ModelVersion()).
		Int("dimensions", provider.Dimensions()).
		Msg("Initialization complete")
}

// setInitError records a fatal initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Initialization failed")
}

// GetInitError returns the initialization error, if any.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// setupMiddleware configures the middleware stack.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(MaxRequestBody))
	s.router.Use(RequireJSONContentType)
	s.router.Use(s.auth.Middleware)
}

// setupRoutes configures the HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Post("/api/embeddings/batch", s.handleBatchEmbed)
		r.Get("/api/embeddings/stats", s.handleEmbeddingStats)
		r.Post("/api/search", s.handleSearch)
	})
}

// Start begins serving HTTP requests.
func (s *Service) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       DefaultHTTPTimeout,
		WriteTimeout:      DefaultHTTPTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// WaitReady blocks until initialization finishes or the timeout elapses.
func (s *Service) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.ready.Load() {
			return nil
		}
		if err := s.GetInitError(); err != nil {
			return err
		}
		time.Sleep(ReadyPollInterval)
	}
	return fmt.Errorf("service not ready after %v", timeout)
}

// Shutdown gracefully stops the service.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}
	s.initMu.RLock()
	store := s.store
	s.initMu.RUnlock()
	if store != nil {
		if err := store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

// Router exposes the chi router, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

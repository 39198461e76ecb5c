// Package config provides configuration management for kinship.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	// DefaultPort is the default HTTP port for the server.
	DefaultPort = 8642

	// DefaultUserID is the scope used when no user id is configured.
	// Kinship is a single-user service; every request resolves to this scope.
	DefaultUserID = "default"

	// DefaultBatchSize is the default number of contacts per embedding sweep.
	DefaultBatchSize = 50

	// DefaultSearchLimit is the default number of search results.
	DefaultSearchLimit = 10

	// DefaultSimilarityThreshold is the minimum similarity for a match.
	DefaultSimilarityThreshold = 0.7

	// NotesPerProfile is how many recent notes feed the composed profile text.
	NotesPerProfile = 5

	// SourceTextLimit is the truncation length for the stored debug copy
	// of composed text.
	SourceTextLimit = 500
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	Port     int    `json:"port"`
	APIToken string `json:"api_token"`
	UserID   string `json:"user_id"`

	// Database settings
	DatabaseURL string `json:"database_url"`
	MaxConns    int    `json:"max_conns"`

	// Embedding provider settings
	EmbeddingAPIKey     string `json:"embedding_api_key"`
	EmbeddingBaseURL    string `json:"embedding_base_url"`
	EmbeddingModelName  string `json:"embedding_model_name"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`

	// Embedding sweep settings
	BatchSize       int     `json:"batch_size"`
	EmbedRatePerSec float64 `json:"embed_rate_per_sec"`
	EmbedWorkers    int     `json:"embed_workers"`

	// Search settings
	SearchLimit         int     `json:"search_limit"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// DataDir returns the data directory path (~/.kinship).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kinship")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Port:                DefaultPort,
		UserID:              DefaultUserID,
		DatabaseURL:         "postgres://localhost/kinship?sslmode=disable",
		MaxConns:            10,
		EmbeddingBaseURL:    "https://api.openai.com/v1",
		EmbeddingModelName:  "text-embedding-3-small",
		EmbeddingDimensions: 1536,
		BatchSize:           DefaultBatchSize,
		EmbedRatePerSec:     5,
		EmbedWorkers:        1,
		SearchLimit:         DefaultSearchLimit,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Load loads configuration from the settings file, merging with defaults.
// Environment variables override file settings.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(data) > 0 {
		// Parse into a scratch copy so a malformed file falls back to
		// pristine defaults instead of half-applying.
		parsed := *cfg
		if err := json.Unmarshal(data, &parsed); err == nil {
			*cfg = parsed
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides config fields from environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("KINSHIP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if v := os.Getenv("KINSHIP_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("KINSHIP_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("KINSHIP_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.EmbeddingBaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL_NAME"); v != "" {
		cfg.EmbeddingModelName = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			cfg.EmbeddingDimensions = d
		}
	}
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})
	return globalConfig
}

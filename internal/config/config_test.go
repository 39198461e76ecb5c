package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultUserID, cfg.UserID)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultSearchLimit, cfg.SearchLimit)
	assert.InDelta(t, DefaultSimilarityThreshold, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, 1536, cfg.EmbeddingDimensions)
	assert.Empty(t, cfg.APIToken)
}

func TestLoad_SettingsFileMergesWithDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureDataDir())
	settings := `{"port": 9999, "embedding_model_name": "custom-model"}`
	require.NoError(t, os.WriteFile(SettingsPath(), []byte(settings), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "custom-model", cfg.EmbeddingModelName)
	// Unset fields keep defaults.
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultUserID, cfg.UserID)
}

func TestLoad_MissingSettingsFileIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestLoad_MalformedSettingsFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureDataDir())
	require.NoError(t, os.WriteFile(SettingsPath(), []byte("{not json"), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestLoad_MalformedSettingsDoesNotHalfApply(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureDataDir())
	// port parses before the decoder chokes on user_id; neither field
	// may survive.
	settings := `{"port": 9999, "user_id": ["not-a-string"]}`
	require.NoError(t, os.WriteFile(SettingsPath(), []byte(settings), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultUserID, cfg.UserID)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureDataDir())
	require.NoError(t, os.WriteFile(SettingsPath(), []byte(`{"port": 9999}`), 0600))

	t.Setenv("KINSHIP_PORT", "7777")
	t.Setenv("KINSHIP_API_TOKEN", "env-token")
	t.Setenv("KINSHIP_USER_ID", "env-user")
	t.Setenv("KINSHIP_DATABASE_URL", "postgres://env/db")
	t.Setenv("EMBEDDING_API_KEY", "env-key")
	t.Setenv("EMBEDDING_BASE_URL", "http://localhost:4000/v1")
	t.Setenv("EMBEDDING_MODEL_NAME", "env-model")
	t.Setenv("EMBEDDING_DIMENSIONS", "768")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, "env-token", cfg.APIToken)
	assert.Equal(t, "env-user", cfg.UserID)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "env-key", cfg.EmbeddingAPIKey)
	assert.Equal(t, "http://localhost:4000/v1", cfg.EmbeddingBaseURL)
	assert.Equal(t, "env-model", cfg.EmbeddingModelName)
	assert.Equal(t, 768, cfg.EmbeddingDimensions)
}

func TestApplyEnv_IgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("KINSHIP_PORT", "not-a-port")
	t.Setenv("EMBEDDING_DIMENSIONS", "-5")

	cfg := Default()
	applyEnv(cfg)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 1536, cfg.EmbeddingDimensions)
}

func TestDataDirUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, ".kinship"), DataDir())
	assert.Equal(t, filepath.Join(home, ".kinship", "settings.json"), SettingsPath())
}

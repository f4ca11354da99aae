package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardex/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	_ = os.Unsetenv("CARDEX_HOST")
	_ = os.Unsetenv("CARDEX_STORAGE_ENGINE")
	_ = os.Unsetenv("CARDEX_DEFAULT_THRESHOLD")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"default host must be loopback for security")
	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, 0.50, cfg.Search.DefaultThreshold)
	assert.Equal(t, 0.70, cfg.Search.MatchFloor)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CARDEX_HOST", "0.0.0.0")
	t.Setenv("CARDEX_PORT", "8080")
	t.Setenv("CARDEX_DEFAULT_THRESHOLD", "0.65")
	t.Setenv("CARDEX_MATCH_FLOOR", "0.8")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.65, cfg.Search.DefaultThreshold)
	assert.Equal(t, 0.8, cfg.Search.MatchFloor)
}

func TestLoad_UnparseableFallsBack(t *testing.T) {
	t.Setenv("CARDEX_PORT", "not-a-port")
	t.Setenv("CARDEX_DEFAULT_THRESHOLD", "very high")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, 0.50, cfg.Search.DefaultThreshold)
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("CARDEX_STORAGE_ENGINE", "postgres")
	_ = os.Unsetenv("CARDEX_POSTGRES_DSN")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CARDEX_POSTGRES_DSN")

	t.Setenv("CARDEX_POSTGRES_DSN", "postgres://localhost/cardex?sslmode=disable")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
}

func TestLoad_UnknownEngineRejected(t *testing.T) {
	t.Setenv("CARDEX_STORAGE_ENGINE", "mongodb")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_ProductionRequiresToken(t *testing.T) {
	t.Setenv("CARDEX_SECURITY_MODE", "production")
	_ = os.Unsetenv("CARDEX_API_TOKEN")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("CARDEX_API_TOKEN", "secret")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Security.APIToken)
}

func TestLoad_ThresholdOutOfRangeRejected(t *testing.T) {
	t.Setenv("CARDEX_DEFAULT_THRESHOLD", "1.5")
	_, err := config.Load()
	require.Error(t, err)
}

package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cortexai/cortex-engine/internal/config"
)

func TestLoad_DefaultHostBindsAllInterfaces(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoad_CanOverrideHostAndPort(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_HOST", "127.0.0.1")
	t.Setenv("CORTEX_PORT", "9090")

	cfg := config.Load()
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_DatabaseURLDefault(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, "postgres://localhost:5432/cortex?sslmode=disable", cfg.DatabaseURL)
}

func TestLoad_DatabaseURLOverride(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_DATABASE_URL", "sqlite:///tmp/cortex.db")

	cfg := config.Load()
	assert.Equal(t, "sqlite:///tmp/cortex.db", cfg.DatabaseURL)
}

func TestLoad_EmbeddingDefaults(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.EmbeddingModel)
	assert.Equal(t, 384, cfg.EmbeddingDim)
}

func TestLoad_EmbeddingDimOverride(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_EMBEDDING_DIM", "768")

	cfg := config.Load()
	assert.Equal(t, 768, cfg.EmbeddingDim)
}

func TestLoad_TokenCostDefaults(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, 0.0000015, cfg.DefaultInputTokenCost)
	assert.Equal(t, 0.000002, cfg.DefaultOutputTokenCost)
}

func TestLoad_TokenCostOverride(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_DEFAULT_INPUT_TOKEN_COST", "0.01")
	t.Setenv("CORTEX_DEFAULT_OUTPUT_TOKEN_COST", "0.02")

	cfg := config.Load()
	assert.Equal(t, 0.01, cfg.DefaultInputTokenCost)
	assert.Equal(t, 0.02, cfg.DefaultOutputTokenCost)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_PORT", "not-a-number")

	cfg := config.Load()
	assert.Equal(t, 8080, cfg.Port, "invalid int env var must fall back to the default")
}

func TestLoad_InvalidFloatFallsBackToDefault(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_DEFAULT_INPUT_TOKEN_COST", "not-a-float")

	cfg := config.Load()
	assert.Equal(t, 0.0000015, cfg.DefaultInputTokenCost)
}

func TestLoad_CORSOriginsDefault(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, "*", cfg.CORSOrigins)
}

func TestLoad_DBPoolDefaults(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 5, cfg.DBMaxIdleConns)
}

func TestLoad_EmbedRateLimitDefaults(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, 10.0, cfg.EmbedRateLimitPerSec)
	assert.Equal(t, 3, cfg.EmbedBreakerMaxFailures)
}

func TestLoad_StreamEnabledDefaultsTrue(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.True(t, cfg.StreamEnabled)
}

func TestLoad_StreamEnabledOverride(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_STREAM_ENABLED", "false")

	cfg := config.Load()
	assert.False(t, cfg.StreamEnabled)
}

func TestLoad_InvalidBoolFallsBackToDefault(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_STREAM_ENABLED", "not-a-bool")

	cfg := config.Load()
	assert.True(t, cfg.StreamEnabled, "invalid bool env var must fall back to the default")
}

func TestLoad_PartitioningManifestDefault(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, "configs/partitioning.yaml", cfg.PartitioningManifestPath)
}

func TestShutdownTimeout_Default(t *testing.T) {
	unsetCortexEnv(t)

	cfg := config.Load()
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
}

func TestShutdownTimeout_Override(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_SHUTDOWN_TIMEOUT", "30s")

	cfg := config.Load()
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout())
}

func TestShutdownTimeout_InvalidDurationFallsBack(t *testing.T) {
	unsetCortexEnv(t)
	t.Setenv("CORTEX_SHUTDOWN_TIMEOUT", "not-a-duration")

	cfg := config.Load()
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
}

// unsetCortexEnv clears every CORTEX_-prefixed variable this package reads
// so each test starts from the documented defaults regardless of what the
// host environment or a prior test left behind.
func unsetCortexEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"CORTEX_DATABASE_URL",
		"CORTEX_HOST",
		"CORTEX_PORT",
		"CORTEX_EMBEDDING_PROVIDER",
		"CORTEX_EMBEDDING_MODEL",
		"CORTEX_EMBEDDING_DIM",
		"CORTEX_EMBEDDING_BASE_URL",
		"CORTEX_EMBEDDING_TIMEOUT",
		"CORTEX_DEFAULT_INPUT_TOKEN_COST",
		"CORTEX_DEFAULT_OUTPUT_TOKEN_COST",
		"CORTEX_CORS_ORIGINS",
		"CORTEX_DB_MAX_OPEN_CONNS",
		"CORTEX_DB_MAX_IDLE_CONNS",
		"CORTEX_EMBED_RATE_LIMIT_PER_SEC",
		"CORTEX_EMBED_BREAKER_MAX_FAILURES",
		"CORTEX_STREAM_ENABLED",
		"CORTEX_PARTITIONING_MANIFEST",
		"CORTEX_SHUTDOWN_TIMEOUT",
	}
	for _, v := range vars {
		_ = os.Unsetenv(v)
	}
}

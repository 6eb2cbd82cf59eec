// Package config loads runtime configuration from CORTEX_-prefixed
// environment variables via the usual getEnv/getEnvInt/getEnvBool helper
// pattern, plus a getEnvDuration helper for the embedding and shutdown
// timeouts.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every CORTEX_-prefixed setting the server and CLI binaries
// read at startup.
type Config struct {
	DatabaseURL string
	Host        string
	Port        int

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
	EmbeddingBaseURL  string
	EmbeddingTimeout  time.Duration

	DefaultInputTokenCost  float64
	DefaultOutputTokenCost float64

	CORSOrigins string

	DBMaxOpenConns int
	DBMaxIdleConns int

	EmbedRateLimitPerSec    float64
	EmbedBreakerMaxFailures int

	StreamEnabled bool

	PartitioningManifestPath string
}

// Load builds a Config from the process environment, matching the
// teacher's buildBaseConfig: every field has a sane default so the server
// can start against a fresh checkout with no .env file.
func Load() Config {
	return Config{
		DatabaseURL: getEnv("CORTEX_DATABASE_URL", "postgres://localhost:5432/cortex?sslmode=disable"),
		Host:        getEnv("CORTEX_HOST", "0.0.0.0"),
		Port:        getEnvInt("CORTEX_PORT", 8080),

		EmbeddingProvider: getEnv("CORTEX_EMBEDDING_PROVIDER", "static"),
		EmbeddingModel:    getEnv("CORTEX_EMBEDDING_MODEL", "all-MiniLM-L6-v2"),
		EmbeddingDim:      getEnvInt("CORTEX_EMBEDDING_DIM", 384),
		EmbeddingBaseURL:  getEnv("CORTEX_EMBEDDING_BASE_URL", "http://localhost:11434"),
		EmbeddingTimeout:  getEnvDuration("CORTEX_EMBEDDING_TIMEOUT", 5*time.Second),

		DefaultInputTokenCost:  getEnvFloat("CORTEX_DEFAULT_INPUT_TOKEN_COST", 0.0000015),
		DefaultOutputTokenCost: getEnvFloat("CORTEX_DEFAULT_OUTPUT_TOKEN_COST", 0.000002),

		CORSOrigins: getEnv("CORTEX_CORS_ORIGINS", "*"),

		DBMaxOpenConns: getEnvInt("CORTEX_DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("CORTEX_DB_MAX_IDLE_CONNS", 5),

		EmbedRateLimitPerSec:    getEnvFloat("CORTEX_EMBED_RATE_LIMIT_PER_SEC", 10.0),
		EmbedBreakerMaxFailures: getEnvInt("CORTEX_EMBED_BREAKER_MAX_FAILURES", 3),

		StreamEnabled: getEnvBool("CORTEX_STREAM_ENABLED", true),

		PartitioningManifestPath: getEnv("CORTEX_PARTITIONING_MANIFEST", "configs/partitioning.yaml"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// ShutdownTimeout reads CORTEX_SHUTDOWN_TIMEOUT, defaulting to 10s. No
// server or CLI code calls it; the stream hub takes no timeout setting.
func (c Config) ShutdownTimeout() time.Duration {
	return getEnvDuration("CORTEX_SHUTDOWN_TIMEOUT", 10*time.Second)
}

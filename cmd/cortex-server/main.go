// Command cortex-server runs the Cortex HTTP surface: the attribution
// pipeline, the provenance store, and the footprint engine wired behind
// internal/httpapi, following the usual config -> storage -> engine ->
// server startup order.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexai/cortex-engine/internal/attribution"
	"github.com/cortexai/cortex-engine/internal/config"
	"github.com/cortexai/cortex-engine/internal/embed"
	"github.com/cortexai/cortex-engine/internal/httpapi"
	"github.com/cortexai/cortex-engine/internal/partitioning"
	"github.com/cortexai/cortex-engine/internal/storeopen"
	"github.com/cortexai/cortex-engine/internal/streamhub"
	"github.com/cortexai/cortex-engine/pkg/types"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manifest, err := partitioning.Load(cfg.PartitioningManifestPath)
	if err != nil {
		slog.Warn("cortex-server: partitioning manifest load failed, using defaults", "error", err)
		manifest = partitioning.DefaultManifest()
	}
	slog.Info("cortex-server: partitioning manifest", "memory_node_shards", manifest.MemoryNodeShards, "attribution_edge_range", manifest.AttributionEdgeRange)

	s, err := storeopen.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		slog.Error("cortex-server: failed to open store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	var embedder embed.Provider
	switch cfg.EmbeddingProvider {
	case "http", "ollama":
		embedder = embed.NewHTTP(embed.HTTPConfig{
			BaseURL: cfg.EmbeddingBaseURL,
			Model:   cfg.EmbeddingModel,
			Timeout: cfg.EmbeddingTimeout,
		})
		slog.Info("cortex-server: embedding provider", "provider", cfg.EmbeddingProvider, "model", cfg.EmbeddingModel, "base_url", cfg.EmbeddingBaseURL)
	default:
		embedder = embed.NewStatic(cfg.EmbeddingDim)
		slog.Info("cortex-server: embedding provider", "provider", "static", "dim", cfg.EmbeddingDim)
	}
	embedder = embed.NewRateLimited(embedder, cfg.EmbedRateLimitPerSec, int(cfg.EmbedRateLimitPerSec))
	embedder = embed.NewCircuitBreakerWithConfig(embedder, embed.CircuitBreakerConfig{
		MaxFailures:          uint32(cfg.EmbedBreakerMaxFailures),
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})

	pipeline := attribution.NewPipeline(s, embedder, types.AgentCostConfig{
		InputTokenCost:  cfg.DefaultInputTokenCost,
		OutputTokenCost: cfg.DefaultOutputTokenCost,
	})

	var hub *streamhub.Hub
	if cfg.StreamEnabled {
		hub = streamhub.NewHub()
		go hub.Run()
		defer hub.Stop()
	}

	srv := httpapi.NewServer(s, pipeline, embedder, hubBroadcaster(hub), cfg.CORSOrigins)
	if hub != nil {
		srv.StreamHandler = hub
	}

	limiter := httpapi.NewRateLimiter(50, 100)
	addr, err := srv.Start(ctx, cfg.Host, cfg.Port, limiter)
	if err != nil {
		slog.Error("cortex-server: failed to start", "error", err)
		os.Exit(1)
	}
	slog.Info("cortex-server: listening", "addr", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("cortex-server: shutting down")
	cancel()
}

func hubBroadcaster(hub *streamhub.Hub) httpapi.Broadcaster {
	if hub == nil {
		return nil
	}
	return hub
}

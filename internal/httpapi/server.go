package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cortexai/cortex-engine/internal/attribution"
	"github.com/cortexai/cortex-engine/internal/embed"
	"github.com/cortexai/cortex-engine/internal/store"
)

// Broadcaster publishes a named event to any live subscribers ('s
// live footprint/health feed). A nil Broadcaster is fine; Server.broadcast
// is a no-op when Server.Stream is nil, so internal/httpapi never takes a
// hard dependency on internal/streamhub.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Server holds every collaborator the HTTP surface calls into. It owns no
// goroutines itself; Start runs the listener in a background goroutine
// shut down on context cancellation.
type Server struct {
	Store       store.Store
	Pipeline    *attribution.Pipeline
	Embedder    embed.Provider
	Stream      Broadcaster
	CORSOrigins string

	// StreamHandler, when set, is mounted at GET /api/v1/stream (the
	// live feed). Left nil, the route is simply absent — httpapi never
	// imports internal/streamhub directly, the caller wires it in.
	StreamHandler http.Handler
}

// NewServer constructs a Server from its collaborators.
func NewServer(s store.Store, pipeline *attribution.Pipeline, embedder embed.Provider, stream Broadcaster, corsOrigins string) *Server {
	return &Server{Store: s, Pipeline: pipeline, Embedder: embedder, Stream: stream, CORSOrigins: corsOrigins}
}

// Routes builds the mux: one entry per REST endpoint, registered with
// Go 1.22+ method-and-wildcard ServeMux patterns.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthz)

	mux.HandleFunc("POST /api/v1/memories", s.createMemory)
	mux.HandleFunc("GET /api/v1/memories", s.listMemories)
	mux.HandleFunc("GET /api/v1/memories/{id}", s.getMemory)
	mux.HandleFunc("PATCH /api/v1/memories/{id}", s.updateMemory)
	mux.HandleFunc("DELETE /api/v1/memories/{id}", s.deleteMemory)

	mux.HandleFunc("POST /api/v1/transactions", s.createTransaction)
	mux.HandleFunc("POST /api/v1/transactions/initiate", s.initiateTransaction)
	mux.HandleFunc("POST /api/v1/transactions/{id}/complete", s.completeTransaction)
	mux.HandleFunc("GET /api/v1/transactions", s.listTransactions)
	mux.HandleFunc("GET /api/v1/transactions/{id}", s.getTransaction)

	mux.HandleFunc("GET /api/v1/attribution/{txn_id}", s.getAttributionByTransaction)
	mux.HandleFunc("GET /api/v1/attribution/memory/{memory_id}", s.getAttributionByMemory)

	mux.HandleFunc("GET /api/v1/health/{agent_id}", s.getHealthSnapshots)
	mux.HandleFunc("GET /api/v1/health/contradictions", s.getContradictions)

	mux.HandleFunc("GET /api/v1/dashboard/overview", s.getDashboardOverview)

	if s.StreamHandler != nil {
		mux.Handle("GET /api/v1/stream", s.StreamHandler)
	}

	return mux
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) broadcast(event string, payload any) {
	if s.Stream == nil {
		return
	}
	s.Stream.Broadcast(event, payload)
}

func (s *Server) embed(r *http.Request, text string) ([]float64, error) {
	vectors, err := s.Embedder.Embed(r.Context(), []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed returned %d vectors for 1 input", len(vectors))
	}
	return vectors[0], nil
}

// Start builds the full middleware chain (rate limit -> security headers
// -> CORS -> mux) and serves it on host:port in a background goroutine,
// shutting down gracefully when ctx is cancelled.
func (s *Server) Start(ctx context.Context, host string, port int, limiter *RateLimiter) (string, error) {
	handler := chain(s.Routes(), limiter.Middleware, securityHeadersMiddleware, corsMiddleware(s.CORSOrigins))

	addr := fmt.Sprintf("%s:%d", host, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi: server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("httpapi: shutdown error", "error", err)
		}
	}()

	return listener.Addr().String(), nil
}

package embed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cortexai/cortex-engine/internal/embed"
)

func mockEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3, 0.4}},
		})
	}))
}

func TestHTTPEmbedSingleText(t *testing.T) {
	server := mockEmbedServer(t)
	defer server.Close()

	p := embed.NewHTTP(embed.HTTPConfig{BaseURL: server.URL, Model: "test-model"})
	vectors, err := p.Embed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("len(vectors) = %d, want 1", len(vectors))
	}
	want := []float64{0.1, 0.2, 0.3, 0.4}
	if len(vectors[0]) != len(want) {
		t.Fatalf("len(vectors[0]) = %d, want %d", len(vectors[0]), len(want))
	}
	for i, v := range want {
		if vectors[0][i] != v {
			t.Errorf("vectors[0][%d] = %v, want %v", i, vectors[0][i], v)
		}
	}
}

func TestHTTPEmbedIssuesOneRequestPerText(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{1, 2}},
		})
	}))
	defer server.Close()

	p := embed.NewHTTP(embed.HTTPConfig{BaseURL: server.URL, Model: "test-model"})
	vectors, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("len(vectors) = %d, want 3", len(vectors))
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (one request per text)", calls)
	}
}

func TestHTTPEmbedBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	p := embed.NewHTTP(embed.HTTPConfig{BaseURL: server.URL, Model: "test-model"})
	if _, err := p.Embed(context.Background(), []string{"hello"}); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestHTTPEmbedTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{1}},
		})
	}))
	defer server.Close()

	p := embed.NewHTTP(embed.HTTPConfig{BaseURL: server.URL, Model: "test-model", Timeout: 5 * time.Millisecond})
	if _, err := p.Embed(context.Background(), []string{"hello"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

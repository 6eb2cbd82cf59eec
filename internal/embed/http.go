package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig configures an Ollama-compatible embedding backend.
type HTTPConfig struct {
	// BaseURL is the server root, e.g. http://localhost:11434.
	BaseURL string

	// Model is the embedding model name sent with every request.
	Model string

	// Timeout bounds each individual text's request.
	Timeout time.Duration
}

// HTTP calls an Ollama-compatible /api/embed endpoint, one request per
// text, since the wire format returns a single vector per call. Callers
// needing resilience wrap it with RateLimited/CircuitBreaker.
type HTTP struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTP builds an HTTP provider from cfg, applying the same defaults the
// standalone client uses (BaseURL=http://localhost:11434, Timeout=5s).
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTP{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse's Embeddings field is a 2D array; /api/embed returns one
// vector per input text and we always send one text at a time.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed issues one /api/embed request per text and returns the resulting
// vectors in order.
func (h *HTTP) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := h.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (h *HTTP) embedOne(ctx context.Context, text string) ([]float64, error) {
	reqBody := embedRequest{Model: h.model, Input: text}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding backend returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding backend returned an empty vector")
	}

	vec := make([]float64, len(respData.Embeddings[0]))
	for i, f := range respData.Embeddings[0] {
		vec[i] = float64(f)
	}
	return vec, nil
}

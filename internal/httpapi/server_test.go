package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexai/cortex-engine/internal/attribution"
	"github.com/cortexai/cortex-engine/internal/embed"
	"github.com/cortexai/cortex-engine/internal/httpapi"
	"github.com/cortexai/cortex-engine/internal/store/sqlite"
	"github.com/cortexai/cortex-engine/pkg/types"
)

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	embedder := embed.NewStatic(8)
	pipeline := attribution.NewPipeline(s, embedder, types.AgentCostConfig{InputTokenCost: 0.000001, OutputTokenCost: 0.000002})
	return httpapi.NewServer(s, pipeline, embedder, nil, "*")
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestMemoryCRUD(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.Routes()

	createBody, _ := json.Marshal(httpapi.MemoryCreate{
		Content: "the user prefers dark mode",
		AgentID: "agent-1",
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/memories", bytes.NewReader(createBody)))
	require.Equal(t, http.StatusCreated, w.Code)

	var created types.Memory
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, types.TierWarm, created.Tier)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/memories/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	updateBody, _ := json.Marshal(httpapi.MemoryUpdate{Content: strPtr("the user prefers light mode")})
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v1/memories/"+created.ID, bytes.NewReader(updateBody)))
	require.Equal(t, http.StatusOK, w.Code)
	var updated types.Memory
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, "the user prefers light mode", updated.Content)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/memories/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Re-deleting an already-deleted memory must be idempotent at the HTTP
	// layer: 404, never 500.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/memories/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/memories/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransactionCreateAndAttribution(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.Routes()

	memBody, _ := json.Marshal(httpapi.MemoryCreate{Content: "paris is the capital of france", AgentID: "agent-1"})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/memories", bytes.NewReader(memBody)))
	require.Equal(t, http.StatusCreated, w.Code)
	var mem types.Memory
	require.NoError(t, json.NewDecoder(w.Body).Decode(&mem))

	txnBody, _ := json.Marshal(httpapi.TransactionCreate{
		QueryText:          "what is the capital of france?",
		ResponseText:       "paris",
		RetrievedMemoryIDs: []string{mem.ID},
		AgentID:            "agent-1",
	})
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(txnBody)))
	require.Equal(t, http.StatusCreated, w.Code)

	var result httpapi.TransactionWithScores
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	require.Len(t, result.Scores, 1)
	assert.Equal(t, mem.ID, result.Scores[0].MemoryID)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/attribution/memory/"+mem.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitiateCompleteFlow(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.Routes()

	memBody, _ := json.Marshal(httpapi.MemoryCreate{Content: "the sky is blue", AgentID: "agent-1"})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/memories", bytes.NewReader(memBody)))
	var mem types.Memory
	require.NoError(t, json.NewDecoder(w.Body).Decode(&mem))

	initBody, _ := json.Marshal(httpapi.TransactionInitiate{
		QueryText:          "what color is the sky?",
		RetrievedMemoryIDs: []string{mem.ID},
		AgentID:            "agent-1",
	})
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/transactions/initiate", bytes.NewReader(initBody)))
	require.Equal(t, http.StatusCreated, w.Code)
	var initResp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&initResp))
	assert.Equal(t, "pending", initResp["status"])

	txnID := initResp["transaction_id"].(string)
	require.NotEmpty(t, txnID)

	completeBody, _ := json.Marshal(httpapi.TransactionComplete{ResponseText: "blue"})
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/api/v1/transactions/"+txnID+"/complete", bytes.NewReader(completeBody)))
	require.Equal(t, http.StatusOK, w.Code)

	var completed httpapi.TransactionWithScores
	require.NoError(t, json.NewDecoder(w.Body).Decode(&completed))
	assert.Equal(t, types.TransactionCompleted, completed.Transaction.Status)

	// Completing a second time must conflict.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/api/v1/transactions/"+txnID+"/complete", bytes.NewReader(completeBody)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDashboardOverview(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/overview", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var overview httpapi.DashboardOverview
	require.NoError(t, json.NewDecoder(w.Body).Decode(&overview))
}

func strPtr(s string) *string { return &s }

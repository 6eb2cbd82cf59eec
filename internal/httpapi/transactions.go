package httpapi

import (
	"net/http"
	"strings"

	"github.com/cortexai/cortex-engine/internal/attribution"
	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

// TransactionCreate is the single-shot POST /api/v1/transactions body
//.
type TransactionCreate struct {
	QueryText          string   `json:"query_text"`
	ResponseText       string   `json:"response_text"`
	RetrievedMemoryIDs []string `json:"retrieved_memory_ids"`
	AgentID            string   `json:"agent_id"`
	Model              string   `json:"model,omitempty"`
	InputTokens        *int     `json:"input_tokens,omitempty"`
	OutputTokens       *int     `json:"output_tokens,omitempty"`
}

// TransactionInitiate is the POST /api/v1/transactions/initiate body
//.
type TransactionInitiate struct {
	QueryText          string   `json:"query_text"`
	RetrievedMemoryIDs []string `json:"retrieved_memory_ids"`
	AgentID            string   `json:"agent_id"`
	Model              string   `json:"model,omitempty"`
}

// TransactionComplete is the POST /api/v1/transactions/{id}/complete body
//.
type TransactionComplete struct {
	ResponseText string `json:"response_text"`
	InputTokens  *int   `json:"input_tokens,omitempty"`
	OutputTokens *int   `json:"output_tokens,omitempty"`
}

// TransactionWithScores bundles a transaction with its freshly computed
// scores and cost breakdown, the response shape names
// TransactionWithScores.
type TransactionWithScores struct {
	Transaction *types.Transaction       `json:"transaction"`
	Scores      []types.AttributionScore `json:"scores"`
	Cost        types.TransactionCost    `json:"cost"`
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		req.AgentID = attribution.DetectAgent()
	}

	txn, scores, cost, err := s.Pipeline.Create(r.Context(), attribution.CreateRequest{
		QueryText:          req.QueryText,
		ResponseText:       req.ResponseText,
		RetrievedMemoryIDs: req.RetrievedMemoryIDs,
		AgentID:            req.AgentID,
		Model:              req.Model,
		InputTokens:        req.InputTokens,
		OutputTokens:       req.OutputTokens,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	s.broadcast("transaction.created", TransactionWithScores{Transaction: txn, Scores: scores, Cost: cost})
	respondJSON(w, http.StatusCreated, TransactionWithScores{Transaction: txn, Scores: scores, Cost: cost})
}

func (s *Server) initiateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionInitiate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		req.AgentID = attribution.DetectAgent()
	}

	id, status, err := s.Pipeline.Initiate(r.Context(), req.QueryText, req.RetrievedMemoryIDs, req.AgentID, req.Model, nil)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"transaction_id": id,
		"status":         status,
	})
}

func (s *Server) completeTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req TransactionComplete
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	txn, scores, cost, err := s.Pipeline.Complete(r.Context(), id, req.ResponseText, nil, req.InputTokens, req.OutputTokens)
	if err != nil {
		respondError(w, err)
		return
	}

	s.broadcast("transaction.completed", TransactionWithScores{Transaction: txn, Scores: scores, Cost: cost})
	respondJSON(w, http.StatusOK, TransactionWithScores{Transaction: txn, Scores: scores, Cost: cost})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListTransactionsOptions{
		AgentID: q.Get("agent_id"),
		Status:  types.TransactionStatus(q.Get("status")),
		Offset:  atoiDefault(q.Get("offset"), 0),
		Limit:   atoiDefault(q.Get("limit"), 20),
	}
	opts.Normalize()

	page, err := s.Store.ListTransactions(r.Context(), opts)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PaginatedResponse[types.Transaction]{
		Items:   page.Items,
		Total:   page.Total,
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	t, err := s.Store.GetTransaction(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if t == nil {
		respondError(w, cortexerr.NotFoundf("transaction %s not found", id))
		return
	}

	scores, err := s.Store.GetAttributionScores(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"transaction": t,
		"scores":      scores,
	})
}

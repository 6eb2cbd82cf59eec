package httpapi

import (
	"net/http"

	"github.com/cortexai/cortex-engine/internal/store"
)

// DashboardOverview is the response shape for GET /api/v1/dashboard/overview
//. It aggregates counts cheaply available from the existing
// Store read surface rather than adding a bespoke aggregation query,
// matching the "external collaborator may poll or reuse generic reads"
// posture leaves Dashboard aggregate metrics as out-of-core.
type DashboardOverview struct {
	TotalMemories             int `json:"total_memories"`
	TotalTransactions         int `json:"total_transactions"`
	UnresolvedContradictions  int `json:"unresolved_contradictions"`
}

func (s *Server) getDashboardOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memories, err := s.Store.ListMemories(ctx, store.ListMemoriesOptions{Limit: 1})
	if err != nil {
		respondError(w, err)
		return
	}

	transactions, err := s.Store.ListTransactions(ctx, store.ListTransactionsOptions{Limit: 1})
	if err != nil {
		respondError(w, err)
		return
	}

	unresolved := false
	contradictions, err := s.Store.ListContradictions(ctx, &unresolved, contradictionLimit)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, DashboardOverview{
		TotalMemories:            memories.Total,
		TotalTransactions:        transactions.Total,
		UnresolvedContradictions: len(contradictions),
	})
}

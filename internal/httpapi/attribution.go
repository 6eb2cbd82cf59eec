package httpapi

import (
	"net/http"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
)

func (s *Server) getAttributionByTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("txn_id")

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
	respondJSON(w, http.StatusOK, scores)
}

func (s *Server) getAttributionByMemory(w http.ResponseWriter, r *http.Request) {
	memoryID := r.PathValue("memory_id")

	scores, err := s.Store.GetAttributionScoresByMemory(r.Context(), memoryID)
	if err != nil {
		respondError(w, err)
		return
	}

	profile, err := s.Store.GetMemoryProfile(r.Context(), memoryID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"scores":  scores,
		"profile": profile,
	})
}

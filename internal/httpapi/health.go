package httpapi

import (
	"net/http"
	"strconv"
)

// healthSnapshotLimit and contradictionLimit are the hard caps
// puts on these two list endpoints.
const (
	healthSnapshotLimit = 20
	contradictionLimit  = 100
)

func (s *Server) getHealthSnapshots(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	snapshots, err := s.Store.ListHealthSnapshots(r.Context(), agentID, healthSnapshotLimit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshots)
}

func (s *Server) getContradictions(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			resolved = &b
		}
	}

	contradictions, err := s.Store.ListContradictions(r.Context(), resolved, contradictionLimit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, contradictions)
}

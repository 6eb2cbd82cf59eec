package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortexai/cortex-engine/internal/attribution"
	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

// MemoryCreate is the POST /api/v1/memories request body.
type MemoryCreate struct {
	Content     string         `json:"content"`
	AgentID     string         `json:"agent_id"`
	Tier        string         `json:"tier,omitempty"`
	Criticality float64        `json:"criticality,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tokens      int            `json:"tokens,omitempty"`
}

// MemoryUpdate is the PATCH /api/v1/memories/{id} request body. Only
// non-nil fields are applied.
type MemoryUpdate struct {
	Content     *string        `json:"content,omitempty"`
	Tier        *string        `json:"tier,omitempty"`
	Criticality *float64       `json:"criticality,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (s *Server) createMemory(w http.ResponseWriter, r *http.Request) {
	var req MemoryCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, cortexerr.Validationf("content must not be empty"))
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		req.AgentID = attribution.DetectAgent()
	}

	tier := types.TierWarm
	if req.Tier != "" {
		tier = types.MemoryTier(req.Tier)
		if !tier.IsValid() {
			respondError(w, cortexerr.Validationf("unknown tier %q", req.Tier))
			return
		}
	}

	embedding, err := s.embed(r, req.Content)
	if err != nil {
		respondError(w, err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	m := &types.Memory{
		ID:          id.String(),
		Content:     req.Content,
		Embedding:   embedding,
		Tokens:      req.Tokens,
		AgentID:     req.AgentID,
		Tier:        tier,
		Criticality: req.Criticality,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now().UTC(),
	}

	txn, err := s.Store.Begin(r.Context())
	if err != nil {
		respondError(w, cortexerr.Storef("begin transaction: %v", err))
		return
	}
	defer txn.Rollback()

	if err := txn.InsertMemory(r.Context(), m); err != nil {
		respondError(w, err)
		return
	}
	if err := txn.Commit(); err != nil {
		respondError(w, cortexerr.Storef("commit: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) listMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListMemoriesOptions{
		AgentID: q.Get("agent_id"),
		Tier:    types.MemoryTier(q.Get("tier")),
		Offset:  atoiDefault(q.Get("offset"), 0),
		Limit:   atoiDefault(q.Get("limit"), 20),
	}
	opts.Normalize()

	page, err := s.Store.ListMemories(r.Context(), opts)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PaginatedResponse[types.Memory]{
		Items:   page.Items,
		Total:   page.Total,
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	})
}

func (s *Server) getMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := s.Store.GetMemory(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if m == nil {
		respondError(w, cortexerr.NotFoundf("memory %s not found", id))
		return
	}

	profile, err := s.Store.GetMemoryProfile(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"memory":  m,
		"profile": profile,
	})
}

func (s *Server) updateMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req MemoryUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	m, err := s.Store.GetMemory(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if m == nil {
		respondError(w, cortexerr.NotFoundf("memory %s not found", id))
		return
	}

	if req.Content != nil {
		m.Content = *req.Content
	}
	if req.Tier != nil {
		tier := types.MemoryTier(*req.Tier)
		if !tier.IsValid() {
			respondError(w, cortexerr.Validationf("unknown tier %q", *req.Tier))
			return
		}
		m.Tier = tier
	}
	if req.Criticality != nil {
		m.Criticality = *req.Criticality
	}
	if req.Metadata != nil {
		m.Metadata = req.Metadata
	}

	txn, err := s.Store.Begin(r.Context())
	if err != nil {
		respondError(w, cortexerr.Storef("begin transaction: %v", err))
		return
	}
	defer txn.Rollback()

	if err := txn.UpdateMemory(r.Context(), m); err != nil {
		respondError(w, err)
		return
	}
	if err := txn.Commit(); err != nil {
		respondError(w, cortexerr.Storef("commit: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, m)
}

func (s *Server) deleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	m, err := s.Store.GetMemory(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if m == nil {
		respondError(w, cortexerr.NotFoundf("memory %s not found", id))
		return
	}

	txn, err := s.Store.Begin(r.Context())
	if err != nil {
		respondError(w, cortexerr.Storef("begin transaction: %v", err))
		return
	}
	defer txn.Rollback()

	if err := txn.SoftDeleteMemory(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	if err := txn.Commit(); err != nil {
		respondError(w, cortexerr.Storef("commit: %v", err))
		return
	}

	respondNoContent(w)
}

func atoiDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Package attribution implements the two-phase transaction protocol and
// the single-shot shortcut that together drive the Embedding Attribution
// Score pipeline. This is the critical path of the core.
package attribution

import (
	"context"
	"strings"
	"time"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/eas"
	"github.com/cortexai/cortex-engine/internal/embed"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

// Pipeline wires together the store, the embedding collaborator, and the
// EAS kernel. It holds no goroutines of its own (: the attribution
// pipeline never spawns tasks).
type Pipeline struct {
	Store       store.Store
	Embedder    embed.Provider
	DefaultCost types.AgentCostConfig
}

// NewPipeline constructs a Pipeline. defaultCost is used whenever
// GetAgentCostConfig finds no per-agent override.
func NewPipeline(s store.Store, embedder embed.Provider, defaultCost types.AgentCostConfig) *Pipeline {
	return &Pipeline{Store: s, Embedder: embedder, DefaultCost: defaultCost}
}

// Initiate is: embed the query if needed, insert a pending
// Transaction preserving the retrieved memory id order, and return its id.
func (p *Pipeline) Initiate(
	ctx context.Context,
	queryText string,
	retrievedMemoryIDs []string,
	agentID, model string,
	queryEmbedding []float64,
) (transactionID string, status string, err error) {
	if strings.TrimSpace(queryText) == "" {
		return "", "", cortexerr.Validationf("query_text must not be empty")
	}

	if queryEmbedding == nil {
		vectors, embErr := p.Embedder.Embed(ctx, []string{queryText})
		if embErr != nil {
			return "", "", cortexerr.Embedf("embed query: %v", embErr)
		}
		if len(vectors) != 1 {
			return "", "", cortexerr.Embedf("embed returned %d vectors for 1 input", len(vectors))
		}
		queryEmbedding = vectors[0]
	}

	txn, err := p.Store.Begin(ctx)
	if err != nil {
		return "", "", cortexerr.Storef("begin transaction: %v", err)
	}
	defer txn.Rollback()

	t := &types.Transaction{
		ID:                 newID(),
		QueryText:          queryText,
		QueryEmbedding:      queryEmbedding,
		RetrievedMemoryIDs: retrievedMemoryIDs,
		AgentID:            agentID,
		Model:              model,
		Status:             types.TransactionPending,
		CreatedAt:          time.Now().UTC(),
	}

	if err := txn.InsertTransaction(ctx, t); err != nil {
		return "", "", cortexerr.Storef("insert transaction: %v", err)
	}

	if err := txn.Commit(); err != nil {
		return "", "", cortexerr.Storef("commit: %v", err)
	}

	return t.ID, string(types.TransactionPending), nil
}

// Cost is the computed {input, output, total} cost of a transaction
// (alias of types.TransactionCost for call-site brevity).
type Cost = types.TransactionCost

// Complete is. Fails NotFound if the transaction does not
// exist, Conflict if its status is not pending.
func (p *Pipeline) Complete(
	ctx context.Context,
	transactionID string,
	responseText string,
	responseEmbedding []float64,
	inputTokens, outputTokens *int,
) (*types.Transaction, []types.AttributionScore, Cost, error) {
	existing, err := p.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, Cost{}, err
	}
	if existing == nil {
		return nil, nil, Cost{}, cortexerr.NotFoundf("transaction %s not found", transactionID)
	}
	if existing.Status != types.TransactionPending {
		return nil, nil, Cost{}, cortexerr.Conflictf("transaction %s is not pending (status=%s)", transactionID, existing.Status)
	}

	if responseEmbedding == nil {
		vectors, embErr := p.Embedder.Embed(ctx, []string{responseText})
		if embErr != nil {
			return nil, nil, Cost{}, cortexerr.Embedf("embed response: %v", embErr)
		}
		if len(vectors) != 1 {
			return nil, nil, Cost{}, cortexerr.Embedf("embed returned %d vectors for 1 input", len(vectors))
		}
		responseEmbedding = vectors[0]
	}

	inTok := whitespaceTokens(existing.QueryText)
	if inputTokens != nil {
		inTok = *inputTokens
	}
	outTok := whitespaceTokens(responseText)
	if outputTokens != nil {
		outTok = *outputTokens
	}

	txn, err := p.Store.Begin(ctx)
	if err != nil {
		return nil, nil, Cost{}, cortexerr.Storef("begin transaction: %v", err)
	}
	defer txn.Rollback()

	existing.ResponseText = &responseText
	existing.ResponseEmbedding = responseEmbedding
	existing.InputTokens = inTok
	existing.OutputTokens = outTok
	existing.Status = types.TransactionCompleted

	if err := txn.CompleteTransaction(ctx, existing); err != nil {
		return nil, nil, Cost{}, cortexerr.Storef("complete transaction: %v", err)
	}

	scores, err := p.runEASAndStore(ctx, txn, existing.ID, existing.QueryEmbedding, responseEmbedding, existing.RetrievedMemoryIDs, true)
	if err != nil {
		return nil, nil, Cost{}, err
	}

	cost := p.lookupCost(ctx, existing.AgentID, inTok, outTok)

	if err := txn.Commit(); err != nil {
		return nil, nil, Cost{}, cortexerr.Storef("commit: %v", err)
	}

	return existing, scores, cost, nil
}

// CreateRequest is the single-shot input to Create.
type CreateRequest struct {
	QueryText          string
	ResponseText       string
	RetrievedMemoryIDs []string
	AgentID            string
	Model              string
	QueryEmbedding     []float64
	ResponseEmbedding  []float64
	InputTokens        *int
	OutputTokens       *int
}

// Create is: insert the transaction directly as completed and
// run EAS-and-store with snapshot = false.
func (p *Pipeline) Create(ctx context.Context, req CreateRequest) (*types.Transaction, []types.AttributionScore, Cost, error) {
	if strings.TrimSpace(req.QueryText) == "" {
		return nil, nil, Cost{}, cortexerr.Validationf("query_text must not be empty")
	}

	qEmb := req.QueryEmbedding
	if qEmb == nil {
		vectors, err := p.Embedder.Embed(ctx, []string{req.QueryText})
		if err != nil {
			return nil, nil, Cost{}, cortexerr.Embedf("embed query: %v", err)
		}
		qEmb = vectors[0]
	}

	rEmb := req.ResponseEmbedding
	if rEmb == nil {
		vectors, err := p.Embedder.Embed(ctx, []string{req.ResponseText})
		if err != nil {
			return nil, nil, Cost{}, cortexerr.Embedf("embed response: %v", err)
		}
		rEmb = vectors[0]
	}

	inTok := whitespaceTokens(req.QueryText)
	if req.InputTokens != nil {
		inTok = *req.InputTokens
	}
	outTok := whitespaceTokens(req.ResponseText)
	if req.OutputTokens != nil {
		outTok = *req.OutputTokens
	}

	txn, err := p.Store.Begin(ctx)
	if err != nil {
		return nil, nil, Cost{}, cortexerr.Storef("begin transaction: %v", err)
	}
	defer txn.Rollback()

	responseText := req.ResponseText
	t := &types.Transaction{
		ID:                 newID(),
		QueryText:          req.QueryText,
		QueryEmbedding:      qEmb,
		ResponseText:       &responseText,
		ResponseEmbedding:  rEmb,
		RetrievedMemoryIDs: req.RetrievedMemoryIDs,
		AgentID:            req.AgentID,
		InputTokens:        inTok,
		OutputTokens:       outTok,
		Model:              req.Model,
		Status:             types.TransactionCompleted,
		CreatedAt:          time.Now().UTC(),
	}

	if err := txn.InsertTransaction(ctx, t); err != nil {
		return nil, nil, Cost{}, cortexerr.Storef("insert transaction: %v", err)
	}

	scores, err := p.runEASAndStore(ctx, txn, t.ID, qEmb, rEmb, req.RetrievedMemoryIDs, false)
	if err != nil {
		return nil, nil, Cost{}, err
	}

	cost := p.lookupCost(ctx, req.AgentID, inTok, outTok)

	if err := txn.Commit(); err != nil {
		return nil, nil, Cost{}, cortexerr.Storef("commit: %v", err)
	}

	return t, scores, cost, nil
}

// runEASAndStore is, the single most subtle routine in the
// core. snapshot=true (the two-phase complete path) ignores deleted_at so
// soft-deletions between initiate and complete cannot shrink the scored
// set; snapshot=false (the single-shot create path) filters deleted_at IS
// NULL. Both paths must be bit-identical for the same (q, r, memory-id
// set) — see the snapshot-invariance tests in pipeline_test.go.
func (p *Pipeline) runEASAndStore(
	ctx context.Context,
	txn store.Txn,
	transactionID string,
	q, r []float64,
	memoryIDs []string,
	snapshot bool,
) ([]types.AttributionScore, error) {
	memories, err := p.Store.GetMemoriesByIDs(ctx, memoryIDs, snapshot)
	if err != nil {
		return nil, cortexerr.Storef("fetch memories: %v", err)
	}

	var scoredIDs []string
	var M [][]float64
	for _, m := range memories {
		if !m.HasEmbedding() {
			continue
		}
		scoredIDs = append(scoredIDs, m.ID)
		M = append(M, m.Embedding)
	}

	result := eas.Compute(M, q, r)

	now := time.Now().UTC()
	scores := make([]types.AttributionScore, 0, len(scoredIDs))
	for i, memoryID := range scoredIDs {
		score := types.AttributionScore{
			ID:            newID(),
			MemoryID:      memoryID,
			TransactionID: transactionID,
			Score:         result.Scores[i],
			RawScore:      result.RawScores[i],
			Method:        "eas",
			Confidence:    1.0,
			ComputeTimeMS: result.ComputeMS,
		}
		if err := txn.InsertAttributionScore(ctx, &score); err != nil {
			return nil, cortexerr.Storef("insert attribution score for memory %s: %v", memoryID, err)
		}

		if _, err := txn.UpsertMemoryProfileWelford(ctx, memoryID, score.Score, now); err != nil {
			return nil, cortexerr.Storef("upsert memory profile for %s: %v", memoryID, err)
		}
		if err := txn.BumpMemoryRetrieval(ctx, memoryID, now); err != nil {
			return nil, cortexerr.Storef("bump retrieval for %s: %v", memoryID, err)
		}

		scores = append(scores, score)
	}

	return scores, nil
}

func (p *Pipeline) lookupCost(ctx context.Context, agentID string, inputTokens, outputTokens int) Cost {
	cfg, err := p.Store.GetAgentCostConfig(ctx, agentID)
	if err != nil || cfg == nil {
		c := p.DefaultCost
		cfg = &c
	}
	input := float64(inputTokens) * cfg.InputTokenCost
	output := float64(outputTokens) * cfg.OutputTokenCost
	return Cost{Input: input, Output: output, Total: input + output}
}

func whitespaceTokens(s string) int {
	return len(strings.Fields(s))
}

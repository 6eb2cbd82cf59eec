package types

import "time"

// CalibrationPair records an EAS score alongside a later-arriving
// ground-truth ContextCite score for the same (memory, transaction) pair.
// The core only records these pairs — fitting a calibration model against
// them is explicitly out of scope (, Non-goals).
type CalibrationPair struct {
	ID            int64     `json:"id"`
	MemoryID      string    `json:"memory_id"`
	TransactionID int64     `json:"transaction_id"`
	EASScore      float64   `json:"eas_score"`
	GroundTruth   float64   `json:"ground_truth_score"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// AgentCostConfig holds per-token pricing for an agent, used to compute the
// cost block returned by complete/create.
type AgentCostConfig struct {
	AgentID         string  `json:"agent_id"`
	InputTokenCost  float64 `json:"input_token_cost"`
	OutputTokenCost float64 `json:"output_token_cost"`
}

// TransactionCost is the computed cost breakdown for a completed
// transaction.
type TransactionCost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Contradiction flags two memories whose content appears to conflict,
// surfaced by the out-of-core health collaborator and merely stored here.
type Contradiction struct {
	ID         int64     `json:"id"`
	MemoryIDA  string    `json:"memory_id_a"`
	MemoryIDB  string    `json:"memory_id_b"`
	Reason     string    `json:"reason"`
	Resolved   bool      `json:"resolved"`
	DetectedAt time.Time `json:"detected_at"`
}

// HealthSnapshot is a point-in-time health reading for an agent, recorded
// by an external collaborator and served back by the HTTP surface.
type HealthSnapshot struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

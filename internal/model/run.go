package model

import "time"

// RunStatus represents the current state of a consensus run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusResolving RunStatus = "resolving"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents a single consensus resolution run for a product.
type Run struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	Category  string           `json:"category,omitempty"`
	Status    RunStatus        `json:"status"`
	Result    *ConsensusResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

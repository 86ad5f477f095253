package store

import (
	"context"

	"github.com/sells-group/specharvest/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// FieldProvenanceRow is one persisted per-field audit row, queryable
// without unpacking the full run result.
type FieldProvenanceRow struct {
	RunID           string                 `json:"run_id"`
	ProductID       string                 `json:"product_id"`
	FieldKey        string                 `json:"field_key"`
	Value           string                 `json:"value"`
	Confidence      float64                `json:"confidence"`
	PassTarget      int                    `json:"pass_target"`
	MeetsPassTarget bool                   `json:"meets_pass_target"`
	Record          model.ProvenanceRecord `json:"record"`
}

// Store defines the persistence interface for consensus runs. The engine
// itself never touches it; only the CLI surfaces wire the two together.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, productID, category string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result *model.ConsensusResult) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Audit
	ListFieldProvenance(ctx context.Context, runID string) ([]FieldProvenanceRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

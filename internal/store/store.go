// Package store persists the run history of the derivation: runs, their
// phases, the derived table snapshots and the diagnostic issues.
package store

import (
	"context"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for derivation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, inputPath, inputDigest string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, outputDigest string) error
	FailRun(ctx context.Context, runID string, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Snapshots. Saving replaces any rows already stored for the run.
	SavePFSRecords(ctx context.Context, runID string, recs []model.PFSRecord) error
	ListPFSRecords(ctx context.Context, runID string) ([]model.PFSRecord, error)
	SaveResponseRecords(ctx context.Context, runID string, recs []model.ResponseRecord) error
	ListResponseRecords(ctx context.Context, runID string) ([]model.ResponseRecord, error)
	SaveIssues(ctx context.Context, runID string, issues []diag.Issue) error
	ListIssues(ctx context.Context, runID string) ([]diag.Issue, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

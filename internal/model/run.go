package model

import "time"

// RunStatus represents the current state of a derivation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents one execution of the derivation over a set of exports.
type Run struct {
	ID           string      `json:"id"`
	InputPath    string      `json:"input_path"`
	InputDigest  string      `json:"input_digest,omitempty"`
	OutputDigest string      `json:"output_digest,omitempty"`
	Status       RunStatus   `json:"status"`
	Summary      *RunSummary `json:"summary,omitempty"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// RunSummary holds the headline counts of a completed run.
type RunSummary struct {
	CohortSize      int               `json:"cohort_size"`
	PFSRecords      int               `json:"pfs_records"`
	Events          int               `json:"events"`
	Censored        int               `json:"censored"`
	Excluded        int               `json:"excluded"`
	ResponseRecords int               `json:"response_records"`
	Issues          map[string]int    `json:"issues,omitempty"`
	VocabVersions   map[string]string `json:"vocab_versions,omitempty"`
	Phases          []PhaseResult     `json:"phases,omitempty"`
}

// RunPhase represents a stage within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline stage.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// PhaseResult holds the outcome of a pipeline stage.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

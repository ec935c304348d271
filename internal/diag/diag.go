// Package diag collects the data-quality findings of a derivation run.
//
// Structural problems (a cohort of the wrong size, conflicting duplicate
// rows) are returned as errors and abort the run. Per-patient problems are
// recorded as Issues in a Report: the patient is excluded or flagged and the
// run continues.
package diag

import (
	"fmt"
	"sort"

	"github.com/sells-group/pfs-cli/internal/model"
)

// Kind classifies an issue.
type Kind string

const (
	KindCohortIntegrity     Kind = "cohort_integrity"
	KindDataGap             Kind = "data_gap"
	KindUnmappedCategory    Kind = "unmapped_category"
	KindDateInconsistency   Kind = "date_inconsistency"
	KindDuplicateRecord     Kind = "duplicate_record"
	KindProgressionMismatch Kind = "progression_mismatch"
	KindInvalidValue        Kind = "invalid_value"
)

// Severity tells whether an issue excluded the patient from an output table.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// NoAssessment marks issues that are not tied to a tumour assessment.
const NoAssessment = -1

// Issue is one finding surfaced in the review artifact.
type Issue struct {
	Kind       Kind            `json:"kind"`
	Severity   Severity        `json:"severity"`
	Stage      string          `json:"stage"`
	PatientID  model.PatientID `json:"patient_id,omitempty"`
	Assessment int             `json:"assessment_index"`
	Field      string          `json:"field,omitempty"`
	Value      string          `json:"value,omitempty"`
	Detail     string          `json:"detail"`
}

func (i Issue) String() string {
	s := fmt.Sprintf("%s %s [%s]", i.Severity, i.Kind, i.Stage)
	if i.PatientID != "" {
		s += " patient=" + string(i.PatientID)
	}
	if i.Assessment != NoAssessment {
		s += fmt.Sprintf(" assessment=%d", i.Assessment)
	}
	if i.Field != "" {
		s += fmt.Sprintf(" %s=%q", i.Field, i.Value)
	}
	return s + ": " + i.Detail
}

// Report accumulates issues from every stage of a run. The zero value is
// ready to use.
type Report struct {
	issues []Issue
}

// Add records an issue.
func (r *Report) Add(i Issue) {
	r.issues = append(r.issues, i)
}

// Warn records a warning for a patient.
func (r *Report) Warn(kind Kind, stage string, patient model.PatientID, detail string) {
	r.Add(Issue{Kind: kind, Severity: SeverityWarning, Stage: stage, PatientID: patient, Assessment: NoAssessment, Detail: detail})
}

// Len returns the number of recorded issues.
func (r *Report) Len() int {
	return len(r.issues)
}

// Issues returns the recorded issues in a deterministic order: by patient,
// assessment, kind, stage, field, value and detail.
func (r *Report) Issues() []Issue {
	out := make([]Issue, len(r.issues))
	copy(out, r.issues)
	sort.SliceStable(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x.PatientID != y.PatientID {
			return x.PatientID < y.PatientID
		}
		if x.Assessment != y.Assessment {
			return x.Assessment < y.Assessment
		}
		if x.Kind != y.Kind {
			return x.Kind < y.Kind
		}
		if x.Stage != y.Stage {
			return x.Stage < y.Stage
		}
		if x.Field != y.Field {
			return x.Field < y.Field
		}
		if x.Value != y.Value {
			return x.Value < y.Value
		}
		return x.Detail < y.Detail
	})
	return out
}

// Count returns the number of issues of the given kind.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, i := range r.issues {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// Counts returns the number of issues per kind.
func (r *Report) Counts() map[string]int {
	out := make(map[string]int)
	for _, i := range r.issues {
		out[string(i.Kind)]++
	}
	return out
}

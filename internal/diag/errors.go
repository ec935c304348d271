package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/pfs-cli/internal/model"
)

// CohortIntegrityError reports an analysis population whose size differs from
// the externally specified count. It is always fatal.
type CohortIntegrityError struct {
	Expected int
	Actual   int
}

func (e *CohortIntegrityError) Error() string {
	return fmt.Sprintf("cohort integrity: expected %d patients, derived %d", e.Expected, e.Actual)
}

// DataGapError reports a patient that cannot be placed on the time axis.
// It is recovered per patient: the patient is excluded from the PFS table.
type DataGapError struct {
	PatientID model.PatientID
	Reason    string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap: patient %s: %s", e.PatientID, e.Reason)
}

// Issue converts the error into an error-level issue of the given stage.
func (e *DataGapError) Issue(stage string) Issue {
	return Issue{
		Kind:       KindDataGap,
		Severity:   SeverityError,
		Stage:      stage,
		PatientID:  e.PatientID,
		Assessment: NoAssessment,
		Detail:     e.Reason,
	}
}

// DuplicateRecordError lists rows of a one-to-one table that share a key but
// disagree on their values. Which row is authoritative is not guessed.
type DuplicateRecordError struct {
	Table     string
	Conflicts []Issue
}

func (e *DuplicateRecordError) Error() string {
	keys := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		k := string(c.PatientID)
		if c.Assessment != NoAssessment {
			k += fmt.Sprintf("#%d", c.Assessment)
		}
		keys = append(keys, k)
	}
	return fmt.Sprintf("duplicate records in %s: %d conflicting keys (%s)", e.Table, len(e.Conflicts), strings.Join(keys, ", "))
}

// IsCohortIntegrity returns true if the error chain holds a CohortIntegrityError.
func IsCohortIntegrity(err error) bool {
	var ce *CohortIntegrityError
	return errors.As(err, &ce)
}

// IsDuplicateRecord returns true if the error chain holds a DuplicateRecordError.
func IsDuplicateRecord(err error) bool {
	var de *DuplicateRecordError
	return errors.As(err, &de)
}

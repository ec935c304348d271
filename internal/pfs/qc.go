package pfs

import (
	"fmt"

	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// GapRange bounds the plausible number of days from progression to
// discontinuation.
type GapRange struct {
	MinDays int
	MaxDays int
}

// Contains reports whether d lies within the range, bounds included.
func (g GapRange) Contains(d int) bool {
	return d >= g.MinDays && d <= g.MaxDays
}

// ProgressionGap computes the signed discontinuation-minus-progression gap
// of a patient with confirmed progression. ok is false otherwise.
func ProgressionGap(res model.EventResolution, gap GapRange) (model.ProgressionQC, bool) {
	if !res.ProgressionConfirmed {
		return model.ProgressionQC{}, false
	}
	qc := model.ProgressionQC{
		PatientID:           res.PatientID,
		DiscontinuationDate: res.DiscontinuationDate,
		ProgressionDate:     res.ProgressionDate,
	}
	if res.DiscontinuationDate.Valid && res.ProgressionDate.Valid {
		d := model.DaysBetween(res.ProgressionDate.Time, res.DiscontinuationDate.Time)
		qc.DayDifference = null.IntFrom(int64(d))
		qc.InRange = gap.Contains(d)
	}
	return qc, true
}

// surfaceGap reports QC rows that are missing a date or fall outside the range.
func surfaceGap(qc model.ProgressionQC, gap GapRange, report *diag.Report) {
	switch {
	case !qc.ProgressionDate.Valid:
		report.Add(diag.Issue{
			Kind: diag.KindDataGap, Severity: diag.SeverityWarning, Stage: StageQC,
			PatientID: qc.PatientID, Assessment: diag.NoAssessment, Field: "progression_date",
			Detail: "progression confirmed but no radiological or clinical progression date",
		})
	case !qc.DiscontinuationDate.Valid:
		report.Add(diag.Issue{
			Kind: diag.KindDataGap, Severity: diag.SeverityWarning, Stage: StageQC,
			PatientID: qc.PatientID, Assessment: diag.NoAssessment, Field: "discontinuation_date",
			Detail: "progression confirmed but the discontinuation date is missing",
		})
	case !qc.InRange:
		report.Add(diag.Issue{
			Kind: diag.KindDateInconsistency, Severity: diag.SeverityWarning, Stage: StageQC,
			PatientID: qc.PatientID, Assessment: diag.NoAssessment, Field: "day_difference",
			Value:  fmt.Sprint(qc.DayDifference.Int64),
			Detail: fmt.Sprintf("discontinuation-to-progression gap outside [%d, %d] days", gap.MinDays, gap.MaxDays),
		})
	}
}

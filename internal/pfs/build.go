package pfs

import (
	"fmt"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// DaysPerMonth converts elapsed days to months.
const DaysPerMonth = 365.25 / 12

// Event reports whether the resolution is a PFS event: progression, death
// from progression, or death recorded on the end-of-study form.
func Event(res model.EventResolution) bool {
	switch {
	case res.Reason == model.ReasonDiseaseProgression:
		return true
	case res.DeathCause == model.DeathCauseProgression:
		return true
	case res.FollowUpReason == model.FollowUpDeath:
		return true
	}
	return false
}

// Record builds the PFS row of a patient. A missing resolved date is a
// DataGapError and a resolved date before the index date is rejected;
// neither is clamped.
func Record(p model.Patient, res model.EventResolution) (model.PFSRecord, error) {
	if !res.ResolvedDate.Valid {
		return model.PFSRecord{}, &diag.DataGapError{PatientID: p.ID, Reason: "no progression, discontinuation or end-of-study date"}
	}
	days := model.DaysBetween(p.IndexDate, res.ResolvedDate.Time)
	if days < 0 {
		return model.PFSRecord{}, &NegativeFollowUpError{PatientID: p.ID, Days: days}
	}

	rec := model.PFSRecord{
		PatientID:    p.ID,
		Site:         p.Site,
		IndexDate:    p.IndexDate,
		ResolvedDate: model.Date(res.ResolvedDate.Time),
		DateSource:   res.DateSource,
		Reason:       res.Reason,
		TimeMonths:   float64(days) / DaysPerMonth,
	}
	if Event(res) {
		rec.Event = 1
	}
	return rec, nil
}

// NegativeFollowUpError reports a resolved date that precedes the index date.
type NegativeFollowUpError struct {
	PatientID model.PatientID
	Days      int
}

func (e *NegativeFollowUpError) Error() string {
	return fmt.Sprintf("negative follow-up: patient %s: resolved date is %d days before the index date", e.PatientID, -e.Days)
}

// Issue converts the error into an error-level issue.
func (e *NegativeFollowUpError) Issue(stage string) diag.Issue {
	return diag.Issue{
		Kind:       diag.KindDateInconsistency,
		Severity:   diag.SeverityError,
		Stage:      stage,
		PatientID:  e.PatientID,
		Assessment: diag.NoAssessment,
		Field:      "day_difference",
		Value:      fmt.Sprint(e.Days),
		Detail:     "resolved date precedes the first dose",
	}
}

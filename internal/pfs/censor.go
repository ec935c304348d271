package pfs

import (
	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// NeedsCensoring reports whether the resolved date must be replaced by the
// last assessment date: the patient is still active and no death was
// recorded on the end-of-study form.
func NeedsCensoring(res model.EventResolution) bool {
	return res.Reason == model.ReasonActive && !res.DeathSignal()
}

// LastAssessmentDate returns the latest non-null evaluation date.
func LastAssessmentDate(assessments []model.TumorAssessment) null.Time {
	var last null.Time
	for _, a := range assessments {
		if a.EvaluationDate.Valid && (!last.Valid || a.EvaluationDate.Time.After(last.Time)) {
			last = a.EvaluationDate
		}
	}
	return last
}

// Censor returns res with its resolved date replaced by the censoring date.
// An active patient without a dated assessment is a DataGapError.
func Censor(res model.EventResolution, assessments []model.TumorAssessment) (model.EventResolution, error) {
	if !NeedsCensoring(res) {
		return res, nil
	}
	last := LastAssessmentDate(assessments)
	if !last.Valid {
		return res, &diag.DataGapError{PatientID: res.PatientID, Reason: "active patient has no dated tumour assessment to censor at"}
	}
	res.ResolvedDate = last
	res.DateSource = model.DateSourceLastAssessment
	return res, nil
}

package recist

import (
	"fmt"

	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

// Stage is the diagnostic stage name of the response classifier.
const Stage = "response"

// Thresholds are the RECIST 1.1 target-lesion rules, in percent and mm.
type Thresholds struct {
	PRPct           float64 // change from baseline at or below which the response is PR
	PDPct           float64 // change from nadir at or above which the response is PD
	PDMinIncreaseMM float64 // absolute increase over the nadir also required for PD
}

// DefaultThresholds returns the published RECIST 1.1 values.
func DefaultThresholds() Thresholds {
	return Thresholds{PRPct: -30, PDPct: 20, PDMinIncreaseMM: 5}
}

// MeasuredResponse classifies an assessment from its target-lesion sum alone.
// The baseline has no response of its own. Unknown is returned whenever an
// operand needed by the rules is null.
func MeasuredResponse(m Metrics, t Thresholds) model.ResponseCategory {
	if m.Index == model.BaselineIndex || !m.SumDiameters.Valid {
		return model.ResponseUnknown
	}
	if m.SumDiameters.Float64 == 0 && m.BaselineSum.Valid {
		return model.ResponseCR
	}
	if m.PctChangeFromNadir.Valid && m.PctChangeFromNadir.Float64 >= t.PDPct &&
		m.ChangeFromNadir.Float64 >= t.PDMinIncreaseMM {
		return model.ResponsePD
	}
	if !m.PctChangeFromBaseline.Valid {
		return model.ResponseUnknown
	}
	if m.PctChangeFromBaseline.Float64 <= t.PRPct {
		return model.ResponsePR
	}
	return model.ResponseSD
}

// concordant compares the reported and measured categories when both are
// target-lesion categories.
func concordant(reported, measured model.ResponseCategory) null.Bool {
	targetCategory := func(c model.ResponseCategory) bool {
		switch c {
		case model.ResponseCR, model.ResponsePR, model.ResponseSD, model.ResponsePD:
			return true
		}
		return false
	}
	if !targetCategory(reported) || !targetCategory(measured) {
		return null.Bool{}
	}
	return null.BoolFrom(reported == measured)
}

// Classifier turns one patient's assessments into response rows.
type Classifier struct {
	Vocab      *vocab.Set
	Thresholds Thresholds
	Report     *diag.Report
}

// Classify returns the response rows of one patient. assessments must be
// sorted by index. Rows without an evaluation date are measured (they still
// move the nadir and the new-lesion flag) but not returned.
func (c *Classifier) Classify(id model.PatientID, assessments []model.TumorAssessment) []model.ResponseRecord {
	metrics := Aggregate(assessments)
	c.checkTimeline(id, assessments)

	var out []model.ResponseRecord
	newLesion := false
	for i, a := range assessments {
		// Once seen, a new lesion stays detected.
		newLesion = newLesion || a.NewLesion

		m := metrics[i]
		rec := model.ResponseRecord{
			PatientID:             id,
			Index:                 a.Index,
			SumDiameters:          m.SumDiameters,
			BaselineSum:           m.BaselineSum,
			BaselineKind:          m.BaselineKind,
			Nadir:                 m.Nadir,
			ChangeFromBaseline:    m.ChangeFromBaseline,
			PctChangeFromBaseline: m.PctChangeFromBaseline,
			ChangeFromNadir:       m.ChangeFromNadir,
			PctChangeFromNadir:    m.PctChangeFromNadir,
			NewLesion:             newLesion,
			ResponseCode:          a.ResponseCode,
			Response:              c.response(id, a),
			MeasuredResponse:      MeasuredResponse(m, c.Thresholds),
		}
		rec.Concordant = concordant(rec.Response, rec.MeasuredResponse)
		rec.Progression = rec.NewLesion || rec.Response == model.ResponsePD || rec.MeasuredResponse == model.ResponsePD

		if !a.EvaluationDate.Valid {
			continue
		}
		rec.EvaluationDate = model.Date(a.EvaluationDate.Time)
		out = append(out, rec)
	}
	return out
}

// response normalizes the reported overall response. An empty code is
// unknown without a warning.
func (c *Classifier) response(id model.PatientID, a model.TumorAssessment) model.ResponseCategory {
	if vocab.Fold(a.ResponseCode) == "" {
		return model.ResponseUnknown
	}
	cat, ok := c.Vocab.Response(a.ResponseCode)
	if !ok {
		c.Report.Add(diag.Issue{
			Kind:       diag.KindUnmappedCategory,
			Severity:   diag.SeverityWarning,
			Stage:      Stage,
			PatientID:  id,
			Assessment: a.Index,
			Field:      "response",
			Value:      a.ResponseCode,
			Detail:     "overall response is not in the lookup table",
		})
	}
	return cat
}

// checkTimeline warns about evaluation dates that go backwards as the
// assessment index increases.
func (c *Classifier) checkTimeline(id model.PatientID, assessments []model.TumorAssessment) {
	var latest model.TumorAssessment
	for _, a := range assessments {
		if !a.EvaluationDate.Valid {
			continue
		}
		if latest.EvaluationDate.Valid && a.EvaluationDate.Time.Before(latest.EvaluationDate.Time) {
			c.Report.Add(diag.Issue{
				Kind:       diag.KindDateInconsistency,
				Severity:   diag.SeverityWarning,
				Stage:      Stage,
				PatientID:  id,
				Assessment: a.Index,
				Field:      "evaluation_date",
				Value:      a.EvaluationDate.Time.Format(model.DateLayout),
				Detail: fmt.Sprintf("assessment %d is dated before assessment %d (%s)",
					a.Index, latest.Index, latest.EvaluationDate.Time.Format(model.DateLayout)),
			})
			continue
		}
		latest = a
	}
}

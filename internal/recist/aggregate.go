// Package recist derives per-assessment tumour-response rows: lesion sums,
// baseline and nadir relative change, and response categories.
package recist

import (
	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/model"
)

// Metrics are the lesion measurements of one assessment relative to the
// patient's baseline and nadir.
type Metrics struct {
	Index        int
	SumDiameters null.Float
	BaselineSum  null.Float
	BaselineKind model.BaselineKind
	Nadir        null.Float

	ChangeFromBaseline    null.Float
	PctChangeFromBaseline null.Float
	ChangeFromNadir       null.Float
	PctChangeFromNadir    null.Float
}

// Baseline classifies the screening assessment of a patient. assessments must
// be sorted by index.
func Baseline(assessments []model.TumorAssessment) (null.Float, model.BaselineKind) {
	if len(assessments) == 0 || !assessments[0].IsBaseline() {
		return null.Float{}, model.BaselineMissing
	}
	b := assessments[0]
	switch {
	case b.SumDiameters.Valid:
		return b.SumDiameters, model.BaselineMeasurable
	case b.NonTarget:
		return null.Float{}, model.BaselineNonMeasurable
	default:
		return null.Float{}, model.BaselineMissing
	}
}

// Aggregate computes the metrics of every assessment of one patient.
// assessments must be sorted by index. The nadir is the smallest non-null
// sum up to and including each assessment; a null sum carries the previous
// nadir forward.
func Aggregate(assessments []model.TumorAssessment) []Metrics {
	baseline, kind := Baseline(assessments)

	out := make([]Metrics, len(assessments))
	var nadir null.Float
	for i, a := range assessments {
		if a.SumDiameters.Valid && (!nadir.Valid || a.SumDiameters.Float64 < nadir.Float64) {
			nadir = a.SumDiameters
		}
		m := Metrics{
			Index:        a.Index,
			SumDiameters: a.SumDiameters,
			BaselineSum:  baseline,
			BaselineKind: kind,
			Nadir:        nadir,
		}
		m.ChangeFromBaseline, m.PctChangeFromBaseline = change(a.SumDiameters, baseline)
		m.ChangeFromNadir, m.PctChangeFromNadir = change(a.SumDiameters, nadir)
		out[i] = m
	}
	return out
}

// change returns value-ref and the same difference in percent of ref. Either
// is null when an operand is null; the percentage is null when ref is zero.
func change(value, ref null.Float) (null.Float, null.Float) {
	if !value.Valid || !ref.Valid {
		return null.Float{}, null.Float{}
	}
	diff := value.Float64 - ref.Float64
	if ref.Float64 == 0 {
		return null.FloatFrom(diff), null.Float{}
	}
	return null.FloatFrom(diff), null.FloatFrom(diff / ref.Float64 * 100)
}

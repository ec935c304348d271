package crf

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

type assessmentKey struct {
	patient model.PatientID
	index   int
}

// Observation kinds, in evaluation-date precedence order.
const (
	obsMeasurable = iota
	obsResponse
	obsNonMeasurable
	obsNewLesion
	obsKinds
)

var obsNames = [obsKinds]string{"measurable", "overall_response", "non_measurable", "new_lesion"}

// observation is what one lesion table says about one assessment.
type observation struct {
	table string
	line  int
	date  null.Time
	sum   null.Float
	flag  bool
	code  string
}

func (o *observation) equal(p *observation) bool {
	if o.date.Valid != p.date.Valid || (o.date.Valid && !o.date.Time.Equal(p.date.Time)) {
		return false
	}
	if o.sum.Valid != p.sum.Valid || (o.sum.Valid && o.sum.Float64 != p.sum.Float64) {
		return false
	}
	return o.flag == p.flag && o.code == p.code
}

type assessmentParts struct {
	obs [obsKinds]*observation
}

func obsKind(table string) int {
	switch table {
	case TableBaselineMeasurable, TableMeasurable:
		return obsMeasurable
	case TableBaselineNonMeasurable, TableNonMeasurable:
		return obsNonMeasurable
	case TableNewLesion:
		return obsNewLesion
	default:
		return obsResponse
	}
}

// assessment records one lesion-table row. It returns false with a
// duplicate issue when a baseline table and index 0 of the matching
// post-baseline table disagree.
func (n *normalizer) assessment(t *table, r row, patient model.PatientID) (diag.Issue, bool) {
	index := model.BaselineIndex
	if !t.schema.baseline {
		raw := t.getCol(r.cells, FieldAssessmentIndex)
		idx, err := parseIndex(raw)
		if err != nil {
			// Without an index the row cannot be placed on the timeline.
			n.invalid(t, r, patient, diag.NoAssessment, FieldAssessmentIndex, raw, err)
			return diag.Issue{}, true
		}
		index = idx
	}

	o := &observation{
		table: t.schema.name,
		line:  r.line,
		date:  n.date(t, r, patient, index, FieldEvaluationDate),
	}
	kind := obsKind(t.schema.name)
	switch kind {
	case obsMeasurable:
		o.sum = n.sum(t, r, patient, index)
	case obsNonMeasurable:
		o.flag = true
		if _, ok := t.colIdx[FieldNonTarget]; ok {
			o.flag = n.flag(t, r, patient, index, FieldNonTarget)
		}
	case obsNewLesion:
		o.flag = n.flag(t, r, patient, index, FieldNewLesion)
	case obsResponse:
		o.code = t.getCol(r.cells, FieldResponse)
	}

	key := assessmentKey{patient: patient, index: index}
	p := n.parts[key]
	if p == nil {
		p = &assessmentParts{}
		n.parts[key] = p
	}
	if prev := p.obs[kind]; prev != nil {
		if prev.equal(o) {
			return diag.Issue{}, true
		}
		return diag.Issue{
			Kind:       diag.KindDuplicateRecord,
			Severity:   diag.SeverityError,
			Stage:      Stage,
			PatientID:  patient,
			Assessment: index,
			Field:      "table",
			Value:      t.schema.name,
			Detail:     fmt.Sprintf("%s line %d and %s line %d describe the same assessment differently", prev.table, prev.line, o.table, o.line),
		}, false
	}
	p.obs[kind] = o
	return diag.Issue{}, true
}

// merge builds one TumorAssessment from the observations of its tables.
func (n *normalizer) merge(key assessmentKey, p *assessmentParts) model.TumorAssessment {
	a := model.TumorAssessment{PatientID: key.patient, Index: key.index}

	for _, o := range p.obs {
		if o != nil && o.date.Valid {
			a.EvaluationDate = o.date
			break
		}
	}
	if a.EvaluationDate.Valid {
		var conflicting []string
		for kind, o := range p.obs {
			if o != nil && o.date.Valid && !o.date.Time.Equal(a.EvaluationDate.Time) {
				conflicting = append(conflicting, fmt.Sprintf("%s=%s", obsNames[kind], o.date.Time.Format(model.DateLayout)))
			}
		}
		if len(conflicting) > 0 {
			n.report.Add(diag.Issue{
				Kind:       diag.KindDateInconsistency,
				Severity:   diag.SeverityWarning,
				Stage:      Stage,
				PatientID:  key.patient,
				Assessment: key.index,
				Field:      FieldEvaluationDate,
				Value:      a.EvaluationDate.Time.Format(model.DateLayout),
				Detail:     "lesion tables disagree on the evaluation date: " + strings.Join(conflicting, " "),
			})
		}
	}

	if o := p.obs[obsMeasurable]; o != nil {
		a.SumDiameters = o.sum
	}
	if o := p.obs[obsNonMeasurable]; o != nil {
		a.NonTarget = o.flag
	}
	if o := p.obs[obsNewLesion]; o != nil {
		a.NewLesion = o.flag
	}
	if o := p.obs[obsResponse]; o != nil {
		a.ResponseCode = o.code
	}
	return a
}

// dataset assembles the sorted output tables.
func (n *normalizer) dataset() *model.Dataset {
	ds := &model.Dataset{
		Intake:           n.intake,
		Discontinuations: n.disc,
		EndOfStudy:       n.eos,
	}
	sort.SliceStable(ds.Intake, func(i, j int) bool { return ds.Intake[i].PatientID < ds.Intake[j].PatientID })
	sort.SliceStable(ds.Discontinuations, func(i, j int) bool {
		return ds.Discontinuations[i].PatientID < ds.Discontinuations[j].PatientID
	})
	sort.SliceStable(ds.EndOfStudy, func(i, j int) bool { return ds.EndOfStudy[i].PatientID < ds.EndOfStudy[j].PatientID })

	keys := make([]assessmentKey, 0, len(n.parts))
	for k := range n.parts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].patient != keys[j].patient {
			return keys[i].patient < keys[j].patient
		}
		return keys[i].index < keys[j].index
	})
	for _, k := range keys {
		ds.Assessments = append(ds.Assessments, n.merge(k, n.parts[k]))
	}
	return ds
}

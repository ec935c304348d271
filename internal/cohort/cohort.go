// Package cohort selects the analysis population.
package cohort

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// Stage is the diagnostic stage name of the cohort filter.
const Stage = "cohort"

// Options defines the population.
type Options struct {
	ExpectedSize  int      // 0 disables the size check
	Withdrawn     []string // subjects removed regardless of dosing
	SitePrefixLen int
}

// Cohort is the analysis population, sorted by patient identifier.
type Cohort struct {
	Patients []model.Patient
	index    map[model.PatientID]int
}

// Len returns the number of patients.
func (c *Cohort) Len() int {
	return len(c.Patients)
}

// Contains reports whether the patient belongs to the cohort.
func (c *Cohort) Contains(id model.PatientID) bool {
	_, ok := c.index[id]
	return ok
}

// Patient returns a cohort member.
func (c *Cohort) Patient(id model.PatientID) (model.Patient, bool) {
	i, ok := c.index[id]
	if !ok {
		return model.Patient{}, false
	}
	return c.Patients[i], true
}

// IDs returns the sorted patient identifiers.
func (c *Cohort) IDs() []model.PatientID {
	out := make([]model.PatientID, len(c.Patients))
	for i, p := range c.Patients {
		out[i] = p.ID
	}
	return out
}

// Build keeps intake patients with a first-dose date, minus withdrawn
// subjects. A population whose size differs from opts.ExpectedSize is a
// CohortIntegrityError. Records of other tables that name a patient absent
// from the intake table are reported as warnings.
func Build(ds *model.Dataset, opts Options, report *diag.Report) (*Cohort, error) {
	log := zap.L().With(zap.String("stage", Stage))

	withdrawn := make(map[model.PatientID]bool, len(opts.Withdrawn))
	for _, w := range opts.Withdrawn {
		withdrawn[model.NormalizePatientID(w)] = true
	}

	known := make(map[model.PatientID]bool, len(ds.Intake))
	c := &Cohort{index: make(map[model.PatientID]int)}
	var notDosed, removed int
	for _, rec := range ds.Intake {
		known[rec.PatientID] = true
		switch {
		case !rec.HasFirstDose:
			notDosed++
		case withdrawn[rec.PatientID]:
			removed++
		default:
			c.Patients = append(c.Patients, model.Patient{
				ID:        rec.PatientID,
				Site:      rec.PatientID.Site(opts.SitePrefixLen),
				IndexDate: model.Date(rec.FirstDoseDate),
			})
		}
	}
	sort.Slice(c.Patients, func(i, j int) bool { return c.Patients[i].ID < c.Patients[j].ID })
	for i, p := range c.Patients {
		c.index[p.ID] = i
	}

	for w := range withdrawn {
		if !known[w] {
			log.Warn("cohort: withdrawn subject not found in intake table", zap.String("patient_id", string(w)))
		}
	}

	orphans := make(map[model.PatientID]bool)
	for _, d := range ds.Discontinuations {
		if !known[d.PatientID] {
			orphans[d.PatientID] = true
		}
	}
	for _, e := range ds.EndOfStudy {
		if !known[e.PatientID] {
			orphans[e.PatientID] = true
		}
	}
	for _, a := range ds.Assessments {
		if !known[a.PatientID] {
			orphans[a.PatientID] = true
		}
	}
	for id := range orphans {
		report.Warn(diag.KindCohortIntegrity, Stage, id, "patient has CRF records but no intake row")
	}

	log.Info("cohort: built analysis population",
		zap.Int("intake", len(ds.Intake)),
		zap.Int("cohort", c.Len()),
		zap.Int("not_dosed", notDosed),
		zap.Int("withdrawn", removed),
	)

	if opts.ExpectedSize > 0 && c.Len() != opts.ExpectedSize {
		return nil, &diag.CohortIntegrityError{Expected: opts.ExpectedSize, Actual: c.Len()}
	}
	return c, nil
}

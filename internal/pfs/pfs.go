package pfs

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/cohort"
	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

// Result is the output of Derive. Every slice is sorted by patient.
type Result struct {
	Resolutions []model.EventResolution
	Records     []model.PFSRecord
	QC          []model.ProgressionQC
	Excluded    []model.PatientID
}

// Events returns the number of records with an event.
func (r *Result) Events() int {
	n := 0
	for _, rec := range r.Records {
		n += rec.Event
	}
	return n
}

// Derive resolves, censors and times every cohort patient. Patients that
// cannot be timed are excluded with an error-level issue; every other cohort
// patient gets exactly one record.
func Derive(c *cohort.Cohort, ds *model.Dataset, v *vocab.Set, gap GapRange, report *diag.Report) *Result {
	discs := make(map[model.PatientID]*model.DiscontinuationRecord, len(ds.Discontinuations))
	for i := range ds.Discontinuations {
		discs[ds.Discontinuations[i].PatientID] = &ds.Discontinuations[i]
	}
	eos := make(map[model.PatientID]*model.EndOfStudyRecord, len(ds.EndOfStudy))
	for i := range ds.EndOfStudy {
		eos[ds.EndOfStudy[i].PatientID] = &ds.EndOfStudy[i]
	}
	assessments := ds.AssessmentsByPatient()

	resolver := &Resolver{Vocab: v, Report: report}
	out := &Result{}

	for _, p := range c.Patients {
		res := resolver.Resolve(p.ID, discs[p.ID], eos[p.ID])

		if qc, ok := ProgressionGap(res, gap); ok {
			surfaceGap(qc, gap, report)
			out.QC = append(out.QC, qc)
		}

		res, err := Censor(res, assessments[p.ID])
		out.Resolutions = append(out.Resolutions, res)
		if err != nil {
			exclude(report, err, StageCensor)
			out.Excluded = append(out.Excluded, p.ID)
			continue
		}

		rec, err := Record(p, res)
		if err != nil {
			exclude(report, err, StageBuild)
			out.Excluded = append(out.Excluded, p.ID)
			continue
		}
		out.Records = append(out.Records, rec)
	}

	zap.L().Info("pfs: derived event table",
		zap.Int("cohort", c.Len()),
		zap.Int("records", len(out.Records)),
		zap.Int("events", out.Events()),
		zap.Int("excluded", len(out.Excluded)),
		zap.Int("qc_rows", len(out.QC)),
	)
	return out
}

func exclude(report *diag.Report, err error, stage string) {
	var gapErr *diag.DataGapError
	var negErr *NegativeFollowUpError
	switch {
	case errors.As(err, &gapErr):
		report.Add(gapErr.Issue(stage))
	case errors.As(err, &negErr):
		report.Add(negErr.Issue(stage))
	default:
		report.Add(diag.Issue{Kind: diag.KindDataGap, Severity: diag.SeverityError, Stage: stage, Assessment: diag.NoAssessment, Detail: err.Error()})
	}
	zap.L().Warn("pfs: patient excluded", zap.String("stage", stage), zap.Error(err))
}

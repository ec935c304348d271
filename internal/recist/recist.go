package recist

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/cohort"
	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

// Derive classifies the assessments of every cohort patient. The rows are
// sorted by patient, then assessment index.
func Derive(c *cohort.Cohort, ds *model.Dataset, v *vocab.Set, t Thresholds, report *diag.Report) []model.ResponseRecord {
	byPatient := ds.AssessmentsByPatient()
	cl := &Classifier{Vocab: v, Thresholds: t, Report: report}

	var out []model.ResponseRecord
	var progressed, discordant int
	for _, id := range c.IDs() {
		assessments := byPatient[id]
		sort.SliceStable(assessments, func(i, j int) bool { return assessments[i].Index < assessments[j].Index })

		rows := cl.Classify(id, assessments)
		anyProgression := false
		for _, r := range rows {
			anyProgression = anyProgression || r.Progression
			if r.Concordant.Valid && !r.Concordant.Bool {
				discordant++
			}
		}
		if anyProgression {
			progressed++
		}
		out = append(out, rows...)
	}

	zap.L().Info("recist: classified assessments",
		zap.Int("rows", len(out)),
		zap.Int("patients_progressed", progressed),
		zap.Int("discordant", discordant),
	)
	return out
}

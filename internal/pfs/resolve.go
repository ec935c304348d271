// Package pfs derives the progression-free survival event table: one
// (time, event) row per cohort patient.
package pfs

import (
	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

// Diagnostic stage names.
const (
	StageResolve = "event_resolution"
	StageCensor  = "censoring"
	StageBuild   = "pfs_build"
	StageQC      = "progression_qc"
)

// Resolver reconciles the discontinuation and end-of-study forms of a patient.
type Resolver struct {
	Vocab  *vocab.Set
	Report *diag.Report
}

// Resolve reconciles one patient. disc and eos may be nil.
func (r *Resolver) Resolve(id model.PatientID, disc *model.DiscontinuationRecord, eos *model.EndOfStudyRecord) model.EventResolution {
	res := model.EventResolution{PatientID: id}

	if eos != nil {
		res.HasEndOfStudy = true
		res.FollowUpReason = r.followUp(id, eos.FollowUpReason)
		res.DeathCause = r.deathCause(id, eos.DeathCause)
	}

	if disc == nil {
		// No discontinuation form: ongoing at data cutoff.
		res.Reason = model.ReasonActive
		res.ReasonMapped = true
		if eos != nil && eos.Date.Valid {
			res.ResolvedDate = eos.Date
			res.DateSource = model.DateSourceEndOfStudy
		}
		return res
	}

	res.HasDiscontinuation = true
	res.RawReason = disc.ReasonCode
	res.Reason, res.ReasonMapped = r.reason(id, disc)

	res.ProgressionDate = ProgressionDate(disc)
	res.ProgressionConfirmed = disc.RECISTProgression || res.Reason == model.ReasonDiseaseProgression

	if res.Reason != model.ReasonDiseaseProgression && res.ReasonMapped &&
		(disc.RECISTProgression || res.ProgressionDate.Valid) {
		r.Report.Add(diag.Issue{
			Kind:       diag.KindProgressionMismatch,
			Severity:   diag.SeverityWarning,
			Stage:      StageResolve,
			PatientID:  id,
			Assessment: diag.NoAssessment,
			Field:      "reason",
			Value:      string(res.Reason),
			Detail:     "progression recorded on the discontinuation form but the reason is not disease progression",
		})
	}

	res.DiscontinuationDate = disc.Date
	switch {
	case res.ProgressionDate.Valid:
		res.ResolvedDate = res.ProgressionDate
		res.DateSource = model.DateSourceProgression
	case disc.Date.Valid:
		res.ResolvedDate = disc.Date
		res.DateSource = model.DateSourceDiscontinuation
	}
	return res
}

// ProgressionDate prefers the radiological progression date and falls back
// to the clinical one.
func ProgressionDate(disc *model.DiscontinuationRecord) null.Time {
	if disc.RadiologicalProgression.Valid {
		return disc.RadiologicalProgression
	}
	return disc.ClinicalProgression
}

// reason normalizes the discontinuation reason. The "Other" code is replaced
// by the free-text reason before the lookup.
func (r *Resolver) reason(id model.PatientID, disc *model.DiscontinuationRecord) (model.Reason, bool) {
	text := disc.ReasonCode
	if r.Vocab.IsOtherReason(text) {
		if vocab.Fold(disc.OtherReason) == "" {
			r.unmapped(id, "other_reason", disc.OtherReason, `reason is "Other" but no free-text reason was given`)
			return model.ReasonUnmapped, false
		}
		text = disc.OtherReason
	}
	reason, ok := r.Vocab.Reason(text)
	if !ok {
		r.unmapped(id, "reason", text, "discontinuation reason is not in the lookup table")
	}
	return reason, ok
}

func (r *Resolver) followUp(id model.PatientID, raw string) model.FollowUpReason {
	v, ok := r.Vocab.FollowUpReason(raw)
	if !ok {
		r.unmapped(id, "follow_up_reason", raw, "follow-up termination reason is not in the lookup table")
	}
	return v
}

func (r *Resolver) deathCause(id model.PatientID, raw string) model.DeathCause {
	v, ok := r.Vocab.DeathCause(raw)
	if !ok {
		r.unmapped(id, "death_cause", raw, "cause of death is not in the lookup table")
	}
	return v
}

func (r *Resolver) unmapped(id model.PatientID, field, value, detail string) {
	r.Report.Add(diag.Issue{
		Kind:       diag.KindUnmappedCategory,
		Severity:   diag.SeverityWarning,
		Stage:      StageResolve,
		PatientID:  id,
		Assessment: diag.NoAssessment,
		Field:      field,
		Value:      value,
		Detail:     detail,
	})
}

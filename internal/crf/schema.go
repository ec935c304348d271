// Package crf turns the raw CRF export tables into typed, de-duplicated
// records keyed by patient and assessment index.
package crf

import (
	"strings"

	"github.com/sells-group/pfs-cli/internal/vocab"
)

// Logical table names. A table is found in the export under its sheet (or
// CSV file stem) name, which defaults to the logical name.
const (
	TableIntake                = "intake"
	TableDiscontinuation       = "discontinuation"
	TableEndOfStudy            = "end_of_study"
	TableBaselineMeasurable    = "baseline_measurable"
	TableBaselineNonMeasurable = "baseline_non_measurable"
	TableMeasurable            = "measurable"
	TableNonMeasurable         = "non_measurable"
	TableNewLesion             = "new_lesion"
	TableOverallResponse       = "overall_response"
)

// Logical field names.
const (
	FieldPatientID         = "patient_id"
	FieldFirstDoseDate     = "first_dose_date"
	FieldDate              = "date"
	FieldReason            = "reason"
	FieldOtherReason       = "other_reason"
	FieldRadiological      = "radiological_progression_date"
	FieldBiological        = "biological_progression_date"
	FieldClinical          = "clinical_progression_date"
	FieldRECISTProgression = "recist_progression"
	FieldFollowUpContinued = "follow_up_continued"
	FieldFollowUpReason    = "follow_up_reason"
	FieldDeathCause        = "death_cause"
	FieldAssessmentIndex   = "assessment_index"
	FieldEvaluationDate    = "evaluation_date"
	FieldNonTarget         = "non_target_present"
	FieldNewLesion         = "new_lesion"
	FieldResponse          = "response"
)

type schema struct {
	name      string
	fields    []string
	required  []string
	indexed   bool // rows carry an assessment index; otherwise one row per patient
	baseline  bool // rows are the screening assessment (index 0)
	diameters bool // sum every diameter-prefixed column
	optional  bool // a missing table is treated as empty
}

var schemas = []schema{
	{
		name:     TableIntake,
		fields:   []string{FieldPatientID, FieldFirstDoseDate},
		required: []string{FieldPatientID, FieldFirstDoseDate},
	},
	{
		name: TableDiscontinuation,
		fields: []string{FieldPatientID, FieldDate, FieldReason, FieldOtherReason,
			FieldRadiological, FieldBiological, FieldClinical, FieldRECISTProgression},
		required: []string{FieldPatientID, FieldDate, FieldReason},
		optional: true,
	},
	{
		name:     TableEndOfStudy,
		fields:   []string{FieldPatientID, FieldDate, FieldFollowUpContinued, FieldFollowUpReason, FieldDeathCause},
		required: []string{FieldPatientID, FieldDate},
		optional: true,
	},
	{
		name:      TableBaselineMeasurable,
		fields:    []string{FieldPatientID, FieldEvaluationDate},
		required:  []string{FieldPatientID},
		baseline:  true,
		diameters: true,
		optional:  true,
	},
	{
		name:     TableBaselineNonMeasurable,
		fields:   []string{FieldPatientID, FieldEvaluationDate, FieldNonTarget},
		required: []string{FieldPatientID},
		baseline: true,
		optional: true,
	},
	{
		name:      TableMeasurable,
		fields:    []string{FieldPatientID, FieldAssessmentIndex, FieldEvaluationDate},
		required:  []string{FieldPatientID, FieldAssessmentIndex},
		indexed:   true,
		diameters: true,
		optional:  true,
	},
	{
		name:     TableNonMeasurable,
		fields:   []string{FieldPatientID, FieldAssessmentIndex, FieldEvaluationDate, FieldNonTarget},
		required: []string{FieldPatientID, FieldAssessmentIndex},
		indexed:  true,
		optional: true,
	},
	{
		name:     TableNewLesion,
		fields:   []string{FieldPatientID, FieldAssessmentIndex, FieldEvaluationDate, FieldNewLesion},
		required: []string{FieldPatientID, FieldAssessmentIndex, FieldNewLesion},
		indexed:  true,
		optional: true,
	},
	{
		name:     TableOverallResponse,
		fields:   []string{FieldPatientID, FieldAssessmentIndex, FieldEvaluationDate, FieldResponse},
		required: []string{FieldPatientID, FieldAssessmentIndex, FieldResponse},
		indexed:  true,
		optional: true,
	},
}

// TableNames lists the logical input tables in load order.
func TableNames() []string {
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.name
	}
	return out
}

// aliases are header spellings seen in site exports besides the field name.
var aliases = map[string][]string{
	FieldPatientID:       {"patient", "subject", "subject_id", "paciente", "id_paciente"},
	FieldFirstDoseDate:   {"first_dose", "date_first_dose", "data_primeira_dose"},
	FieldAssessmentIndex: {"assessment", "visit", "visit_index", "avaliacao"},
	FieldEvaluationDate:  {"assessment_date", "visit_date", "data_avaliacao"},
	FieldReason:          {"reason_code", "discontinuation_reason", "motivo"},
	FieldOtherReason:     {"other", "reason_other", "outro_motivo"},
	FieldResponse:        {"overall_response", "response_code", "resposta"},
}

// headerKey folds a column header so that "First dose date", "first_dose_date"
// and "FIRST-DOSE DATE" compare equal.
func headerKey(s string) string {
	s = vocab.Fold(s)
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(s)
}

package model

import "gopkg.in/guregu/null.v3"

// DiscontinuationRecord is the treatment-discontinuation form of one patient.
type DiscontinuationRecord struct {
	PatientID   PatientID `json:"patient_id"`
	Date        null.Time `json:"date"`
	ReasonCode  string    `json:"reason_code"`
	OtherReason string    `json:"other_reason,omitempty"`

	RadiologicalProgression null.Time `json:"radiological_progression_date"`
	BiologicalProgression   null.Time `json:"biological_progression_date"`
	ClinicalProgression     null.Time `json:"clinical_progression_date"`
	RECISTProgression       bool      `json:"recist_progression"`
}

// EndOfStudyRecord is the end-of-study form of one patient.
type EndOfStudyRecord struct {
	PatientID         PatientID `json:"patient_id"`
	Date              null.Time `json:"date"`
	FollowUpContinued bool      `json:"follow_up_continued"`
	FollowUpReason    string    `json:"follow_up_reason,omitempty"`
	DeathCause        string    `json:"death_cause,omitempty"`
}

// BaselineIndex is the assessment index reserved for the screening visit.
const BaselineIndex = 0

// TumorAssessment is one tumour evaluation, merged across the lesion tables.
// SumDiameters is null when no measurable lesion was recorded at the visit.
type TumorAssessment struct {
	PatientID      PatientID  `json:"patient_id"`
	Index          int        `json:"assessment_index"`
	EvaluationDate null.Time  `json:"evaluation_date"`
	SumDiameters   null.Float `json:"sum_diameters"`
	NonTarget      bool       `json:"non_target_present"`
	NewLesion      bool       `json:"new_lesion"`
	ResponseCode   string     `json:"response_code,omitempty"`
}

// IsBaseline reports whether the assessment is the screening evaluation.
func (a TumorAssessment) IsBaseline() bool {
	return a.Index == BaselineIndex
}

// Dataset holds every normalized input table of one derivation run.
// Slices are sorted by patient (and assessment index where applicable).
type Dataset struct {
	Intake           []IntakeRecord          `json:"intake"`
	Discontinuations []DiscontinuationRecord `json:"discontinuations"`
	EndOfStudy       []EndOfStudyRecord      `json:"end_of_study"`
	Assessments      []TumorAssessment       `json:"assessments"`
}

// AssessmentsByPatient groups assessments by patient, preserving order.
func (d *Dataset) AssessmentsByPatient() map[PatientID][]TumorAssessment {
	out := make(map[PatientID][]TumorAssessment)
	for _, a := range d.Assessments {
		out[a.PatientID] = append(out[a.PatientID], a)
	}
	return out
}

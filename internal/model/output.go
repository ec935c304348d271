package model

import (
	"time"

	"gopkg.in/guregu/null.v3"
)

// DateSource records which input supplied a resolved date.
type DateSource string

const (
	DateSourceProgression     DateSource = "progression"
	DateSourceDiscontinuation DateSource = "discontinuation"
	DateSourceEndOfStudy      DateSource = "end_of_study"
	DateSourceLastAssessment  DateSource = "last_assessment"
	DateSourceNone            DateSource = ""
)

// EventResolution is the reconciled discontinuation state of one patient.
type EventResolution struct {
	PatientID PatientID `json:"patient_id"`

	RawReason    string `json:"raw_reason,omitempty"`
	Reason       Reason `json:"reason"`
	ReasonMapped bool   `json:"reason_mapped"`

	ProgressionDate      null.Time `json:"progression_date"`
	ProgressionConfirmed bool      `json:"progression_confirmed"`

	DiscontinuationDate null.Time  `json:"discontinuation_date"`
	ResolvedDate        null.Time  `json:"resolved_date"`
	DateSource          DateSource `json:"date_source"`

	HasDiscontinuation bool           `json:"has_discontinuation"`
	HasEndOfStudy      bool           `json:"has_end_of_study"`
	FollowUpReason     FollowUpReason `json:"follow_up_reason,omitempty"`
	DeathCause         DeathCause     `json:"death_cause,omitempty"`
}

// DeathSignal reports whether the end-of-study form records a death, either
// by follow-up termination reason or by cause of death.
func (r EventResolution) DeathSignal() bool {
	return r.FollowUpReason == FollowUpDeath || r.DeathCause == DeathCauseProgression
}

// ProgressionQC is the signed gap between the recorded discontinuation date
// and the progression date of a patient with confirmed progression.
type ProgressionQC struct {
	PatientID           PatientID `json:"patient_id"`
	DiscontinuationDate null.Time `json:"discontinuation_date"`
	ProgressionDate     null.Time `json:"progression_date"`
	DayDifference       null.Int  `json:"day_difference"`
	InRange             bool      `json:"in_range"`
}

// PFSRecord is one row of the survival-analysis input table.
type PFSRecord struct {
	PatientID    PatientID  `json:"patient_id"`
	Site         string     `json:"site"`
	IndexDate    time.Time  `json:"index_date"`
	ResolvedDate time.Time  `json:"resolved_date"`
	DateSource   DateSource `json:"date_source"`
	Reason       Reason     `json:"reason"`
	TimeMonths   float64    `json:"time_months"`
	Event        int        `json:"event"`
}

// BaselineKind distinguishes patients without a numeric baseline.
type BaselineKind string

const (
	BaselineMeasurable    BaselineKind = "measurable"
	BaselineNonMeasurable BaselineKind = "non_measurable"
	BaselineMissing       BaselineKind = "missing"
)

// ResponseRecord is one classified patient-assessment row.
type ResponseRecord struct {
	PatientID      PatientID `json:"patient_id"`
	Index          int       `json:"assessment_index"`
	EvaluationDate time.Time `json:"evaluation_date"`

	SumDiameters null.Float   `json:"sum_diameters"`
	BaselineSum  null.Float   `json:"baseline_sum"`
	BaselineKind BaselineKind `json:"baseline_kind"`
	Nadir        null.Float   `json:"nadir"`

	ChangeFromBaseline    null.Float `json:"change_from_baseline"`
	PctChangeFromBaseline null.Float `json:"pct_change_from_baseline"`
	ChangeFromNadir       null.Float `json:"change_from_nadir"`
	PctChangeFromNadir    null.Float `json:"pct_change_from_nadir"`

	NewLesion        bool             `json:"new_lesion"`
	ResponseCode     string           `json:"response_code,omitempty"`
	Response         ResponseCategory `json:"response"`
	MeasuredResponse ResponseCategory `json:"measured_response"`
	Concordant       null.Bool        `json:"concordant"`
	Progression      bool             `json:"progression"`
}

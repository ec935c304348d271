package model

// Reason is a canonical discontinuation category.
type Reason string

const (
	ReasonDiseaseProgression Reason = "Disease progression"
	ReasonActive             Reason = "Active"
	ReasonToxicity           Reason = "Unacceptable toxicity/adverse event"
	ReasonPatientDecision    Reason = "Patient's decision"
	ReasonWorsening          Reason = "Worsening"
	ReasonSurgery            Reason = "Patient submitted to surgery"
	ReasonUnmapped           Reason = "unmapped"
)

// Reasons lists the canonical discontinuation categories.
var Reasons = []Reason{
	ReasonDiseaseProgression,
	ReasonActive,
	ReasonToxicity,
	ReasonPatientDecision,
	ReasonWorsening,
	ReasonSurgery,
}

// ResponseCategory is a normalized RECIST overall response.
type ResponseCategory string

const (
	ResponseCR         ResponseCategory = "CR"
	ResponsePR         ResponseCategory = "PR"
	ResponseSD         ResponseCategory = "SD"
	ResponseNonCRNonPD ResponseCategory = "Non-CR/Non-PD"
	ResponsePD         ResponseCategory = "PD"
	ResponseUnknown    ResponseCategory = "unknown"
)

// ResponseCategories lists the known response categories.
var ResponseCategories = []ResponseCategory{
	ResponseCR,
	ResponsePR,
	ResponseSD,
	ResponseNonCRNonPD,
	ResponsePD,
}

// FollowUpReason is a canonical follow-up termination reason from the
// end-of-study form.
type FollowUpReason string

const (
	FollowUpDeath      FollowUpReason = "Death"
	FollowUpLost       FollowUpReason = "Lost to follow-up"
	FollowUpWithdrawal FollowUpReason = "Withdrawal of consent"
	FollowUpOther      FollowUpReason = "Other"
	FollowUpNone       FollowUpReason = ""
	FollowUpUnmapped   FollowUpReason = "unmapped"
)

// FollowUpReasons lists the canonical follow-up termination reasons.
var FollowUpReasons = []FollowUpReason{FollowUpDeath, FollowUpLost, FollowUpWithdrawal, FollowUpOther}

// DeathCause is a canonical cause-of-death category.
type DeathCause string

const (
	DeathCauseProgression  DeathCause = "disease progression"
	DeathCauseAdverseEvent DeathCause = "adverse event"
	DeathCauseOther        DeathCause = "other"
	DeathCauseNone         DeathCause = ""
	DeathCauseUnmapped     DeathCause = "unmapped"
)

// DeathCauses lists the canonical causes of death.
var DeathCauses = []DeathCause{DeathCauseProgression, DeathCauseAdverseEvent, DeathCauseOther}

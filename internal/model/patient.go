// Package model defines the typed records shared by the derivation stages.
package model

import (
	"strings"
	"time"
)

// DateLayout is the ISO layout used for every date written by the tool.
const DateLayout = "2006-01-02"

// PatientID is the site-patient code printed on the case report forms
// (e.g. "003-0017"). The leading characters identify the site.
type PatientID string

// Site returns the fixed-width site prefix of the identifier. Identifiers
// shorter than width are returned whole.
func (p PatientID) Site(width int) string {
	s := string(p)
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}

// NormalizePatientID trims whitespace and upper-cases an identifier so that
// exports typed by different sites join on the same key.
func NormalizePatientID(raw string) PatientID {
	return PatientID(strings.ToUpper(strings.TrimSpace(raw)))
}

// Patient is a member of the analysis cohort.
type Patient struct {
	ID        PatientID `json:"patient_id"`
	Site      string    `json:"site"`
	IndexDate time.Time `json:"index_date"`
}

// IntakeRecord is one row of the treatment-intake table.
type IntakeRecord struct {
	PatientID     PatientID `json:"patient_id"`
	FirstDoseDate time.Time `json:"first_dose_date"`
	HasFirstDose  bool      `json:"has_first_dose"`
}

// Date truncates t to a calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

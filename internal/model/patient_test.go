package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPatientID_Site(t *testing.T) {
	assert.Equal(t, "003", PatientID("003-0017").Site(3))
	assert.Equal(t, "003-", PatientID("003-0017").Site(4))
	assert.Equal(t, "01", PatientID("01").Site(3))
	assert.Equal(t, "003-0017", PatientID("003-0017").Site(0))
}

func TestNormalizePatientID(t *testing.T) {
	assert.Equal(t, PatientID("003-0017"), NormalizePatientID("  003-0017 "))
	assert.Equal(t, PatientID("AB-12"), NormalizePatientID("ab-12"))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 162, DaysBetween(a, b))
	assert.Equal(t, -162, DaysBetween(b, a))

	// Time of day is ignored.
	c := time.Date(2023, 2, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 162, DaysBetween(a, c))
}

func TestEventResolution_DeathSignal(t *testing.T) {
	assert.True(t, EventResolution{FollowUpReason: FollowUpDeath}.DeathSignal())
	assert.True(t, EventResolution{DeathCause: DeathCauseProgression}.DeathSignal())
	assert.False(t, EventResolution{FollowUpReason: FollowUpLost}.DeathSignal())
	assert.False(t, EventResolution{}.DeathSignal())
}

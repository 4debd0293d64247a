package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lima = mustLoad("America/Lima")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Wednesday 5 March 2025, 09:00 in Lima.
func fixedClock() Clock {
	return ClockFunc(func() time.Time {
		return time.Date(2025, 3, 5, 9, 0, 0, 0, lima)
	})
}

var (
	monday     = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	nextMonday = monday.AddDate(0, 0, 7)
	sunday     = time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)
)

func newTestValidator() *Validator {
	return NewValidator(DefaultRules(), fixedClock(), lima)
}

func at(date time.Time, hhmm string, minutes int) Appointment {
	return Appointment{
		PatientID:       1,
		Date:            date,
		Time:            MustParseTimeOfDay(hhmm),
		DurationMinutes: minutes,
		Status:          StatusPending,
	}
}

func requireCode(t *testing.T, err error, code ValidationCode) {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, code, verr.Code)
}

func TestValidate_PastDate(t *testing.T) {
	v := newTestValidator()

	err := v.Validate(at(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), "10:00", 30), nil)
	requireCode(t, err, CodePastDate)

	// today is still bookable
	err = v.Validate(at(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "10:00", 30), nil)
	assert.NoError(t, err)
}

func TestValidate_TodayFollowsPracticeTimeZone(t *testing.T) {
	// 02:00 UTC on the 6th is still the 5th in Lima.
	clock := ClockFunc(func() time.Time { return time.Date(2025, 3, 6, 2, 0, 0, 0, time.UTC) })
	v := NewValidator(DefaultRules(), clock, lima)

	err := v.Validate(at(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "17:00", 30), nil)
	assert.NoError(t, err)
}

func TestValidate_OutsideHours(t *testing.T) {
	v := newTestValidator()

	for _, hhmm := range []string{"07:59", "18:01", "00:00", "23:30"} {
		requireCode(t, v.Validate(at(monday, hhmm, 30), nil), CodeOutsideHours)
	}
	for _, hhmm := range []string{"08:00", "18:00", "12:45"} {
		assert.NoError(t, v.Validate(at(monday, hhmm, 30), nil), hhmm)
	}
}

func TestValidate_Sunday(t *testing.T) {
	v := newTestValidator()

	for _, hhmm := range []string{"08:00", "10:00", "18:00"} {
		requireCode(t, v.Validate(at(sunday, hhmm, 30), nil), CodeSundayNotAllowed)
	}
}

func TestValidate_CheckOrder(t *testing.T) {
	v := newTestValidator()

	// a past Sunday at night reports the past date first
	pastSunday := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	requireCode(t, v.Validate(at(pastSunday, "21:00", 30), nil), CodePastDate)

	// a future Sunday at night reports the hours before the weekday
	requireCode(t, v.Validate(at(sunday, "21:00", 30), nil), CodeOutsideHours)
}

func TestValidate_InvalidDuration(t *testing.T) {
	v := newTestValidator()

	requireCode(t, v.Validate(at(monday, "10:00", 0), nil), CodeInvalidDuration)
	requireCode(t, v.Validate(at(monday, "10:00", -15), nil), CodeInvalidDuration)
}

func TestValidate_Overlap(t *testing.T) {
	v := newTestValidator()

	first := at(monday, "10:00", 30)
	first.ID = 1
	existing := []Appointment{first}

	err := v.Validate(at(monday, "10:15", 30), existing)
	requireCode(t, err, CodeOverlap)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotNil(t, verr.Conflict)
	assert.Equal(t, int64(1), verr.Conflict.ID)

	requireCode(t, v.Validate(at(monday, "09:45", 30), existing), CodeOverlap)
	requireCode(t, v.Validate(at(monday, "09:00", 120), existing), CodeOverlap)
	requireCode(t, v.Validate(at(monday, "10:10", 5), existing), CodeOverlap)
}

func TestValidate_TouchingBoundariesAllowed(t *testing.T) {
	v := newTestValidator()

	first := at(monday, "10:00", 30)
	first.ID = 1
	existing := []Appointment{first}

	assert.NoError(t, v.Validate(at(monday, "10:30", 30), existing))
	assert.NoError(t, v.Validate(at(monday, "09:30", 30), existing))
}

func TestValidate_IgnoresTerminalAndOtherDates(t *testing.T) {
	v := newTestValidator()

	cancelled := at(monday, "10:00", 30)
	cancelled.ID = 1
	cancelled.Status = StatusCancelled

	done := at(monday, "10:00", 30)
	done.ID = 2
	done.Status = StatusCompleted

	otherDay := at(nextMonday, "10:00", 30)
	otherDay.ID = 3

	existing := []Appointment{cancelled, done, otherDay}
	assert.NoError(t, v.Validate(at(monday, "10:00", 30), existing))
	requireCode(t, v.Validate(at(nextMonday, "10:15", 30), existing), CodeOverlap)
}

func TestValidate_SkipsCandidateItself(t *testing.T) {
	v := newTestValidator()

	self := at(monday, "10:00", 30)
	self.ID = 7

	moved := self
	moved.Time = MustParseTimeOfDay("10:15")
	assert.NoError(t, v.Validate(moved, []Appointment{self}))
}

func TestValidate_CapacityAllowsParallelChairs(t *testing.T) {
	rules := DefaultRules()
	rules.Capacity = 2
	v := NewValidator(rules, fixedClock(), lima)

	a := at(monday, "10:00", 30)
	a.ID = 1
	assert.NoError(t, v.Validate(at(monday, "10:00", 30), []Appointment{a}))

	b := at(monday, "10:00", 30)
	b.ID = 2
	requireCode(t, v.Validate(at(monday, "10:15", 30), []Appointment{a, b}), CodeOverlap)
}

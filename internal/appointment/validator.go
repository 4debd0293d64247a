package appointment

import (
	"fmt"
	"time"
)

type ValidationCode string

const (
	CodePastDate         ValidationCode = "PAST_DATE"
	CodeOutsideHours     ValidationCode = "OUTSIDE_HOURS"
	CodeSundayNotAllowed ValidationCode = "SUNDAY_NOT_ALLOWED"
	CodeOverlap          ValidationCode = "OVERLAP"
	CodeInvalidDuration  ValidationCode = "INVALID_DURATION"
)

// ValidationError is a user-correctable booking rule violation. It blocks
// the write and is reported back to the caller verbatim.
type ValidationError struct {
	Code    ValidationCode
	Message string
	// Conflict is the existing appointment that caused an OVERLAP rejection.
	Conflict *Appointment
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Rules are the practice's booking constraints.
type Rules struct {
	OpenAt  TimeOfDay
	CloseAt TimeOfDay
	// Capacity is how many active appointments may share a minute of the
	// agenda. One means no overlap at all.
	Capacity int
}

func DefaultRules() Rules {
	return Rules{
		OpenAt:   TimeOfDay{Hour: 8},
		CloseAt:  TimeOfDay{Hour: 18},
		Capacity: 1,
	}
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

// Validator enforces the booking rules. It has no side effects; "today" is
// taken from the clock in the practice time zone.
type Validator struct {
	rules Rules
	clock Clock
	loc   *time.Location
}

func NewValidator(rules Rules, clock Clock, loc *time.Location) *Validator {
	if rules.Capacity < 1 {
		rules.Capacity = 1
	}
	if clock == nil {
		clock = SystemClock
	}
	if loc == nil {
		loc = time.Local
	}
	return &Validator{rules: rules, clock: clock, loc: loc}
}

// Validate checks a candidate appointment against the calendar rules and the
// appointments already booked on the same date. existing may include rows of
// any status; only active ones other than the candidate itself are counted.
func (v *Validator) Validate(candidate Appointment, existing []Appointment) error {
	if err := v.ValidateSchedule(candidate); err != nil {
		return err
	}
	return v.checkOverlap(candidate, existing)
}

// ValidateSchedule runs every rule except the overlap check.
func (v *Validator) ValidateSchedule(candidate Appointment) error {
	today := CivilDate(v.clock.Now().In(v.loc))
	date := CivilDate(candidate.Date)

	if date.Before(today) {
		return &ValidationError{
			Code:    CodePastDate,
			Message: "appointments cannot be booked on past dates",
		}
	}
	if candidate.Time.Before(v.rules.OpenAt) || candidate.Time.After(v.rules.CloseAt) {
		return &ValidationError{
			Code:    CodeOutsideHours,
			Message: fmt.Sprintf("appointments must start between %s and %s", v.rules.OpenAt, v.rules.CloseAt),
		}
	}
	if date.Weekday() == time.Sunday {
		return &ValidationError{
			Code:    CodeSundayNotAllowed,
			Message: "appointments cannot be booked on Sundays",
		}
	}
	if candidate.DurationMinutes <= 0 {
		return &ValidationError{
			Code:    CodeInvalidDuration,
			Message: "duration must be a positive number of minutes",
		}
	}
	return nil
}

func (v *Validator) checkOverlap(candidate Appointment, existing []Appointment) error {
	date := CivilDate(candidate.Date)
	start, end := candidate.StartMinute(), candidate.EndMinute()

	var overlapping []Appointment
	for _, other := range existing {
		if other.ID != 0 && other.ID == candidate.ID {
			continue
		}
		if !other.Status.IsActive() || !CivilDate(other.Date).Equal(date) {
			continue
		}
		if start < other.EndMinute() && end > other.StartMinute() {
			overlapping = append(overlapping, other)
		}
	}
	if len(overlapping) < v.rules.Capacity {
		return nil
	}

	conflict := overlapping[0]
	return &ValidationError{
		Code: CodeOverlap,
		Message: fmt.Sprintf("an appointment is already booked from %s to %s",
			conflict.Time, conflict.EndTime()),
		Conflict: &conflict,
	}
}

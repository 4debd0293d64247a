package appointment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// ActiveStatuses are the statuses that occupy a slot on the agenda.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed, StatusInProgress}

func (s AppointmentStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) IsValid() bool {
	return s.IsActive() || s.IsTerminal()
}

// Action is the kind of persistence event published after a write commits.
// The values double as the action names recorded in the calendar sync log.
type Action string

const (
	ActionCreate Action = "crear"
	ActionUpdate Action = "actualizar"
	ActionDelete Action = "eliminar"
)

const DefaultDurationMinutes = 30

type Patient struct {
	ID        int64
	FullName  string
	DNI       string
	Phone     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID              int64
	PatientID       int64
	Date            time.Time // civil date, midnight UTC
	Time            TimeOfDay
	DurationMinutes int
	Reason          string
	Notes           string
	Status          AppointmentStatus
	ReminderSent    bool
	ReminderAt      *time.Time
	CreatedBy       *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
}

// StartMinute and EndMinute place the appointment on its day, in minutes
// since midnight. End is exclusive.
func (a *Appointment) StartMinute() int { return a.Time.Minutes() }

func (a *Appointment) EndMinute() int { return a.Time.Minutes() + a.DurationMinutes }

// StartAt resolves the appointment's wall-clock start in loc.
func (a *Appointment) StartAt(loc *time.Location) time.Time {
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), a.Time.Hour, a.Time.Minute, 0, 0, loc)
}

func (a *Appointment) EndAt(loc *time.Location) time.Time {
	return a.StartAt(loc).Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// EndTime is the wall-clock time of day the appointment finishes.
func (a *Appointment) EndTime() TimeOfDay {
	end := a.EndMinute() % (24 * 60)
	return TimeOfDay{Hour: end / 60, Minute: end % 60}
}

// IsPast reports whether the appointment has already started at now.
func (a *Appointment) IsPast(now time.Time) bool {
	return a.StartAt(now.Location()).Before(now)
}

// CivilDate truncates t to its calendar date, expressed as midnight UTC so
// that dates compare and serialise independently of any time zone.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// TimeOfDay is a wall-clock time within the practice day, minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return TimeOfDay{}, fmt.Errorf("invalid time %q: seconds must be zero", s)
		}
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q: want HH:MM", s)
}

func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayFromMinutes builds a TimeOfDay from minutes since midnight.
func TimeOfDayFromMinutes(m int) TimeOfDay {
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Minutes() < o.Minutes() }

func (t TimeOfDay) After(o TimeOfDay) bool { return t.Minutes() > o.Minutes() }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrTransitionRejected  = errors.New("transition rejected")
	ErrNotEditable         = errors.New("appointment can no longer be edited")
	ErrDateBeingBooked     = errors.New("another booking for this date is in progress")
)

type ListFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	// Patient matches a substring of the patient's name or DNI.
	Patient string
	Status  AppointmentStatus
	Limit   int
	Offset  int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize applies the default page size, caps it and clamps a negative offset.
func (f ListFilter) Normalize() ListFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Summary holds the agenda counters shown above the appointment list.
type Summary struct {
	Total     int `json:"total"`
	Today     int `json:"today"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id int64) (*Patient, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	ListPatientIDs(ctx context.Context, limit int) ([]int64, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error)
	Summarize(ctx context.Context, today time.Time) (Summary, error)

	// For overlap checks
	ListActiveOnDate(ctx context.Context, date time.Time) ([]Appointment, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error)

	// Reminders
	ListPendingReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
}

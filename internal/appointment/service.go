package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/dental-agenda/internal/config"
	"github.com/hackgods/dental-agenda/internal/metrics"
	redisclient "github.com/hackgods/dental-agenda/internal/redis"
)

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	cfg       config.Config
	loc       *time.Location
	clock     Clock
	validator *Validator
	hooks     []Hook
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithHooks registers post-commit hooks, run in order after every write.
func WithHooks(h ...Hook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h...) }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		loc:    cfg.Location,
		clock:  SystemClock,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	for _, opt := range opts {
		opt(s)
	}

	s.validator = NewValidator(rulesFromConfig(cfg), s.clock, s.loc)
	return s
}

func rulesFromConfig(cfg config.Config) Rules {
	rules := DefaultRules()
	if t, err := ParseTimeOfDay(cfg.OpenAt); err == nil {
		rules.OpenAt = t
	}
	if t, err := ParseTimeOfDay(cfg.CloseAt); err == nil {
		rules.CloseAt = t
	}
	if cfg.ChairCapacity > 0 {
		rules.Capacity = cfg.ChairCapacity
	}
	return rules
}

// Location is the practice time zone appointments are expressed in.
func (s *Service) Location() *time.Location { return s.loc }

// Now is the current time in the practice time zone.
func (s *Service) Now() time.Time { return s.clock.Now().In(s.loc) }

type CreateInput struct {
	PatientID       int64
	Date            time.Time
	Time            TimeOfDay
	DurationMinutes int
	Reason          string
	Notes           string
	CreatedBy       *int64
}

// UpdateInput carries the fields to change; nil fields are left as they are.
type UpdateInput struct {
	PatientID       *int64
	Date            *time.Time
	Time            *TimeOfDay
	DurationMinutes *int
	Reason          *string
	Notes           *string
}

// CreateAppointment books a new pending appointment.
// The overlap check and the insert run under a per-date lock so two
// concurrent bookings cannot both pass validation for the same interval.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (*Appointment, error) {
	if in.DurationMinutes == 0 {
		in.DurationMinutes = DefaultDurationMinutes
	}

	if _, err := s.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	cand := Appointment{
		PatientID:       in.PatientID,
		Date:            CivilDate(in.Date),
		Time:            in.Time,
		DurationMinutes: in.DurationMinutes,
		Reason:          in.Reason,
		Notes:           in.Notes,
		Status:          StatusPending,
		CreatedBy:       in.CreatedBy,
	}

	if err := s.validator.ValidateSchedule(cand); err != nil {
		return nil, s.rejected(ctx, err)
	}

	var created *Appointment

	err := s.locker.WithDateLock(ctx, cand.Date, func(lockCtx context.Context) error {
		existing, err := s.repo.ListActiveOnDate(lockCtx, cand.Date)
		if err != nil {
			return fmt.Errorf("list appointments on date: %w", err)
		}
		if err := s.validator.Validate(cand, existing); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, cand)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDateBeingBooked
		}
		return nil, s.rejected(ctx, err)
	}

	zerolog.Ctx(ctx).Info().
		Int64("appointment_id", created.ID).
		Int64("patient_id", created.PatientID).
		Str("date", created.Date.Format(time.DateOnly)).
		Str("time", created.Time.String()).
		Msg("appointment created")

	s.publish(ctx, ActionCreate, created)
	return created, nil
}

// UpdateAppointment edits the details of a non-terminal appointment. The
// schedule rules are re-checked; overlap only when OVERLAP_CHECK_ON_EDIT is set.
func (s *Service) UpdateAppointment(ctx context.Context, id int64, in UpdateInput) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.CanEdit() {
		return nil, ErrNotEditable
	}

	if in.PatientID != nil && *in.PatientID != appt.PatientID {
		if _, err := s.repo.GetPatientByID(ctx, *in.PatientID); err != nil {
			return nil, err
		}
		appt.PatientID = *in.PatientID
	}
	if in.Date != nil {
		appt.Date = CivilDate(*in.Date)
	}
	if in.Time != nil {
		appt.Time = *in.Time
	}
	if in.DurationMinutes != nil {
		appt.DurationMinutes = *in.DurationMinutes
	}
	if in.Reason != nil {
		appt.Reason = *in.Reason
	}
	if in.Notes != nil {
		appt.Notes = *in.Notes
	}

	if err := s.validator.ValidateSchedule(*appt); err != nil {
		return nil, s.rejected(ctx, err)
	}

	var updated *Appointment
	write := func(ctx context.Context) error {
		if s.cfg.OverlapCheckOnEdit {
			existing, err := s.repo.ListActiveOnDate(ctx, appt.Date)
			if err != nil {
				return fmt.Errorf("list appointments on date: %w", err)
			}
			if err := s.validator.Validate(*appt, existing); err != nil {
				return err
			}
		}

		u, err := s.repo.UpdateAppointment(ctx, *appt)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// the row moved to a terminal status since it was loaded
				return ErrNotEditable
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = u
		return nil
	}

	if s.cfg.OverlapCheckOnEdit {
		err = s.locker.WithDateLock(ctx, appt.Date, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDateBeingBooked
		}
		return nil, s.rejected(ctx, err)
	}

	zerolog.Ctx(ctx).Info().
		Int64("appointment_id", updated.ID).
		Msg("appointment updated")

	s.publish(ctx, ActionUpdate, updated)
	return updated, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, TransitionConfirm)
}

func (s *Service) StartAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, TransitionStart)
}

func (s *Service) CompleteAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, TransitionComplete)
}

func (s *Service) MarkNoShow(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, TransitionNoShow)
}

// CancelAppointment is the delete operation. Appointments are never removed;
// they move to cancelled and the calendar event is deleted.
func (s *Service) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.transition(ctx, id, TransitionCancel)
}

// Transition applies t by name, for callers that route on the operation.
func (s *Service) Transition(ctx context.Context, id int64, t Transition) (*Appointment, error) {
	return s.transition(ctx, id, t)
}

func (s *Service) transition(ctx context.Context, id int64, t Transition) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	to, err := t.Apply(appt.Status)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Int64("appointment_id", id).
			Str("transition", string(t)).
			Str("status", string(appt.Status)).
			Msg("transition rejected")
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment %d changed status concurrently", ErrTransitionRejected, id)
		}
		return nil, fmt.Errorf("%s appointment: %w", t, err)
	}

	zerolog.Ctx(ctx).Info().
		Int64("appointment_id", id).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")

	s.publish(ctx, t.Action(), updated)
	return updated, nil
}

// GetAppointment retrieves an appointment together with its patient.
func (s *Service) GetAppointment(ctx context.Context, id int64) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	return &AppointmentDetail{Appointment: *appt, Patient: patient}, nil
}

// ListAppointments returns one page of appointments, newest first, and the
// total number of rows matching the filter. The page is sized by f.Normalize.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	f = f.Normalize()
	if f.Status != "" && !f.Status.IsValid() {
		return nil, 0, fmt.Errorf("unknown status %q", f.Status)
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return items, total, nil
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return s.repo.Summarize(ctx, CivilDate(s.Now()))
}

// CanCancel evaluates Appointment.CanCancel against the service clock.
func (s *Service) CanCancel(a *Appointment) bool {
	return a.CanCancel(s.Now())
}

func (s *Service) rejected(ctx context.Context, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		metrics.AppointmentsRejected.WithLabelValues(string(verr.Code)).Inc()
		zerolog.Ctx(ctx).Info().
			Str("code", string(verr.Code)).
			Msg(verr.Message)
	}
	return err
}

func (s *Service) publish(ctx context.Context, action Action, appt *Appointment) {
	if len(s.hooks) == 0 {
		return
	}

	ev := Event{
		Action:      action,
		Appointment: *appt,
		OccurredAt:  s.clock.Now(),
	}

	// the write is committed; a cancelled request must not abort the hooks
	hookCtx := context.WithoutCancel(ctx)
	for _, h := range s.hooks {
		h.AfterCommit(hookCtx, ev)
	}
}

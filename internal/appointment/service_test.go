package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-agenda/internal/config"
	"github.com/hackgods/dental-agenda/internal/metrics"
	redisclient "github.com/hackgods/dental-agenda/internal/redis"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordedEvents) AfterCommit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

type fixture struct {
	repo    *MemoryRepository
	svc     *Service
	events  *recordedEvents
	patient *Patient
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	patient, err := repo.CreatePatient(context.Background(), Patient{
		FullName: "Rosa Quispe",
		DNI:      "45871236",
		Phone:    "987654321",
	})
	require.NoError(t, err)

	cfg.Location = lima
	events := &recordedEvents{}
	svc := NewService(repo, redisclient.NewLocalLocker(time.Second), cfg,
		WithClock(fixedClock()),
		WithHooks(events),
	)

	return &fixture{repo: repo, svc: svc, events: events, patient: patient}
}

func (f *fixture) book(t *testing.T, date time.Time, hhmm string, minutes int) (*Appointment, error) {
	t.Helper()
	return f.svc.CreateAppointment(context.Background(), CreateInput{
		PatientID:       f.patient.ID,
		Date:            date,
		Time:            MustParseTimeOfDay(hhmm),
		DurationMinutes: minutes,
		Reason:          "Limpieza",
	})
}

func TestService_CreateOverlapScenario(t *testing.T) {
	f := newFixture(t, config.Config{})

	first, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)

	_, err = f.book(t, monday, "10:15", 30)
	requireCode(t, err, CodeOverlap)

	_, err = f.book(t, monday, "10:20", 40)
	requireCode(t, err, CodeOverlap)

	_, err = f.book(t, nextMonday, "10:30", 30)
	require.NoError(t, err)

	assert.Equal(t, []Action{ActionCreate, ActionCreate}, f.events.actions())
}

func TestService_CreateDefaultsDuration(t *testing.T) {
	f := newFixture(t, config.Config{})

	appt, err := f.book(t, monday, "11:00", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDurationMinutes, appt.DurationMinutes)
}

func TestService_CreateUnknownPatient(t *testing.T) {
	f := newFixture(t, config.Config{})

	_, err := f.svc.CreateAppointment(context.Background(), CreateInput{
		PatientID: 999,
		Date:      monday,
		Time:      MustParseTimeOfDay("10:00"),
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.Empty(t, f.events.actions())
}

func TestService_CreateRejectionIsCounted(t *testing.T) {
	f := newFixture(t, config.Config{})
	before := testutil.ToFloat64(metrics.AppointmentsRejected.WithLabelValues(string(CodeSundayNotAllowed)))

	_, err := f.book(t, sunday, "10:00", 30)
	requireCode(t, err, CodeSundayNotAllowed)

	after := testutil.ToFloat64(metrics.AppointmentsRejected.WithLabelValues(string(CodeSundayNotAllowed)))
	assert.Equal(t, before+1, after)
}

func TestService_ConcurrentBookingsOnlyOneWins(t *testing.T) {
	f := newFixture(t, config.Config{})

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.book(t, monday, "15:00", 30)
		}(i)
	}
	wg.Wait()

	var ok, overlap int
	for _, err := range errs {
		var verr *ValidationError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &verr) && verr.Code == CodeOverlap:
			overlap++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, overlap)
}

func TestService_CreateWaitsForBusyDate(t *testing.T) {
	f := newFixture(t, config.Config{})

	held := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.svc.locker.WithDateLock(context.Background(), monday, func(context.Context) error {
			close(held)
			time.Sleep(30 * time.Millisecond)
			return nil
		})
	}()
	<-held

	appt, err := f.book(t, monday, "15:00", 30)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	require.NoError(t, <-done)
}

func TestService_UpdateSkipsOverlapByDefault(t *testing.T) {
	f := newFixture(t, config.Config{})

	_, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)
	second, err := f.book(t, monday, "11:00", 30)
	require.NoError(t, err)

	moved := MustParseTimeOfDay("10:15")
	updated, err := f.svc.UpdateAppointment(context.Background(), second.ID, UpdateInput{Time: &moved})
	require.NoError(t, err)
	assert.Equal(t, moved, updated.Time)
	assert.Equal(t, []Action{ActionCreate, ActionCreate, ActionUpdate}, f.events.actions())
}

func TestService_UpdateChecksOverlapWhenConfigured(t *testing.T) {
	f := newFixture(t, config.Config{OverlapCheckOnEdit: true})

	_, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)
	second, err := f.book(t, monday, "11:00", 30)
	require.NoError(t, err)

	moved := MustParseTimeOfDay("10:15")
	_, err = f.svc.UpdateAppointment(context.Background(), second.ID, UpdateInput{Time: &moved})
	requireCode(t, err, CodeOverlap)

	// moving within its own slot does not conflict with itself
	longer := 45
	_, err = f.svc.UpdateAppointment(context.Background(), second.ID, UpdateInput{DurationMinutes: &longer})
	assert.NoError(t, err)
}

func TestService_UpdateStillValidatesSchedule(t *testing.T) {
	f := newFixture(t, config.Config{})

	appt, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)

	late := MustParseTimeOfDay("19:00")
	_, err = f.svc.UpdateAppointment(context.Background(), appt.ID, UpdateInput{Time: &late})
	requireCode(t, err, CodeOutsideHours)
}

func TestService_UpdateTerminalIsNotEditable(t *testing.T) {
	f := newFixture(t, config.Config{})

	appt, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)
	_, err = f.svc.CancelAppointment(context.Background(), appt.ID)
	require.NoError(t, err)

	notes := "llamar antes"
	_, err = f.svc.UpdateAppointment(context.Background(), appt.ID, UpdateInput{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestService_Lifecycle(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	appt, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)

	appt, err = f.svc.ConfirmAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)

	appt, err = f.svc.StartAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, appt.Status)

	appt, err = f.svc.CompleteAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)

	assert.Equal(t,
		[]Action{ActionCreate, ActionUpdate, ActionUpdate, ActionUpdate},
		f.events.actions())
}

func TestService_CompleteCancelledIsRejected(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	appt, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)
	_, err = f.svc.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrTransitionRejected)

	stored, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, []Action{ActionCreate, ActionDelete}, f.events.actions())
}

func TestService_CancelFreesTheSlot(t *testing.T) {
	f := newFixture(t, config.Config{})

	appt, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)
	_, err = f.svc.CancelAppointment(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = f.book(t, monday, "10:00", 30)
	assert.NoError(t, err)
}

func TestService_NoShowFromInProgressIsRejected(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	f.repo.Put(Appointment{ID: 50, PatientID: f.patient.ID, Date: monday, Time: MustParseTimeOfDay("09:00"),
		DurationMinutes: 30, Status: StatusInProgress})

	_, err := f.svc.MarkNoShow(ctx, 50)
	assert.ErrorIs(t, err, ErrTransitionRejected)
}

func TestService_ListAndSummary(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	today := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	_, err := f.book(t, today, "10:00", 30)
	require.NoError(t, err)
	b, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)
	_, err = f.svc.ConfirmAppointment(ctx, b.ID)
	require.NoError(t, err)

	sum, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Today: 1, Pending: 1, Confirmed: 1}, sum)

	items, total, err := f.svc.ListAppointments(ctx, ListFilter{Patient: "quispe"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, b.ID, items[0].ID, "newest date first")
	assert.Equal(t, "Rosa Quispe", items[0].Patient.FullName)

	items, total, err = f.svc.ListAppointments(ctx, ListFilter{Status: StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, b.ID, items[0].ID)

	_, _, err = f.svc.ListAppointments(ctx, ListFilter{Status: "archived"})
	assert.Error(t, err)
}

func TestListFilter_Normalize(t *testing.T) {
	tests := []struct {
		in         ListFilter
		limit, off int
	}{
		{in: ListFilter{}, limit: DefaultListLimit},
		{in: ListFilter{Limit: 5, Offset: 10}, limit: 5, off: 10},
		{in: ListFilter{Limit: 500}, limit: MaxListLimit},
		{in: ListFilter{Limit: -1, Offset: -3}, limit: DefaultListLimit},
	}
	for _, tt := range tests {
		got := tt.in.Normalize()
		assert.Equal(t, tt.limit, got.Limit)
		assert.Equal(t, tt.off, got.Offset)
	}
}

func TestService_GetAppointment(t *testing.T) {
	f := newFixture(t, config.Config{})

	appt, err := f.book(t, monday, "10:00", 30)
	require.NoError(t, err)

	detail, err := f.svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, f.patient.ID, detail.Patient.ID)

	_, err = f.svc.GetAppointment(context.Background(), 404)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/config"
	"github.com/hackgods/dental-agenda/internal/metrics"
)

const maxResponseBody = 64 << 10

// PatientLookup resolves the patient named in the event text.
type PatientLookup interface {
	GetPatientByID(ctx context.Context, id int64) (*appointment.Patient, error)
}

// Dispatcher pushes appointment changes to the external calendar through the
// google_calendar integration webhook, recording every attempt in the sync log.
// It never retries: each lifecycle event is delivered at most once.
type Dispatcher struct {
	store    Store
	patients PatientLookup
	client   *http.Client
	timeout  time.Duration
	loc      *time.Location
	defaults EventDefaults
}

type DispatcherOption func(*Dispatcher)

func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

func WithTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = t }
}

func NewDispatcher(store Store, patients PatientLookup, cfg config.Config, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		patients: patients,
		client:   &http.Client{},
		timeout:  cfg.SyncTimeout,
		loc:      cfg.Location,
		defaults: EventDefaults{Location: cfg.PracticeLocation, Color: cfg.CalendarColor},
	}
	if d.timeout <= 0 {
		d.timeout = 10 * time.Second
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sync delivers one appointment change to the calendar. A nil error means the
// webhook answered 200 and the returned log is exitoso. ErrIntegrationUnavailable
// is returned without touching the log; a *SyncError is returned after the
// failure has been recorded.
func (d *Dispatcher) Sync(ctx context.Context, appt appointment.Appointment, action appointment.Action) (*SyncLog, error) {
	cfg, err := d.store.GetConfig(ctx, TypeGoogleCalendar)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return nil, ErrIntegrationUnavailable
		}
		return nil, fmt.Errorf("load calendar config: %w", err)
	}
	if !cfg.Usable() {
		return nil, ErrIntegrationUnavailable
	}

	var previous *SyncLog
	if action != appointment.ActionCreate {
		previous, err = d.store.LastSuccessfulSync(ctx, appt.ID)
		if err != nil && !errors.Is(err, ErrSyncLogNotFound) {
			return nil, fmt.Errorf("load previous sync: %w", err)
		}
	}

	patient, err := d.patients.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	eventID := EventID(appt.ID)
	if previous != nil && previous.ExternalID != nil && *previous.ExternalID != "" {
		eventID = *previous.ExternalID
	}

	payload, err := BuildPayload(action, appt, *patient, eventID, d.loc, d.defaults)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	entry, err := d.store.InsertSyncLog(ctx, SyncLog{
		AppointmentID:   appt.ID,
		PatientName:     patient.FullName,
		AppointmentDate: appt.Date,
		AppointmentTime: appt.Time,
		Action:          action,
		Status:          SyncPending,
		Payload:         body,
	})
	if err != nil {
		return nil, fmt.Errorf("insert sync log: %w", err)
	}

	logger := zerolog.Ctx(ctx).With().
		Int64("appointment_id", appt.ID).
		Int64("sync_log_id", entry.ID).
		Str("action", string(action)).
		Logger()

	start := time.Now()
	status, respBody, callErr := d.post(ctx, cfg.WebhookURL, body)
	metrics.SyncDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())

	// the attempt already happened; record it even if the caller went away
	finishCtx := context.WithoutCancel(ctx)

	if callErr != nil || status != http.StatusOK {
		syncErr := &SyncError{LogID: entry.ID, StatusCode: status, Body: strings.TrimSpace(string(respBody)), Err: callErr}
		entry.Status = SyncFailed
		entry.ExternalID = nil
		entry.ErrorMessage = syncErr.Error()
		if err := d.store.FinishSyncLog(finishCtx, entry.ID, SyncFailed, nil, entry.ErrorMessage); err != nil {
			logger.Error().Err(err).Msg("failed to record sync failure")
		}
		metrics.SyncAttempts.WithLabelValues(string(action), string(SyncFailed)).Inc()
		return entry, syncErr
	}

	var externalID *string
	switch {
	case action == appointment.ActionCreate:
		id := eventIDFromResponse(respBody)
		if id == "" {
			id = eventID
		}
		externalID = &id
	case previous != nil:
		externalID = previous.ExternalID
	}

	entry.Status = SyncSuccess
	entry.ExternalID = externalID
	if err := d.store.FinishSyncLog(finishCtx, entry.ID, SyncSuccess, externalID, ""); err != nil {
		logger.Error().Err(err).Msg("failed to record sync success")
	}
	metrics.SyncAttempts.WithLabelValues(string(action), string(SyncSuccess)).Inc()

	logger.Info().Msg("calendar synced")
	return entry, nil
}

// Resync pushes the current state of an appointment again: a delete for
// cancelled ones, an update when the calendar already has the event and a
// create otherwise.
func (d *Dispatcher) Resync(ctx context.Context, appt appointment.Appointment) (*SyncLog, error) {
	action := appointment.ActionCreate
	if appt.Status == appointment.StatusCancelled {
		action = appointment.ActionDelete
	} else if _, err := d.store.LastSuccessfulSync(ctx, appt.ID); err == nil {
		action = appointment.ActionUpdate
	} else if !errors.Is(err, ErrSyncLogNotFound) {
		return nil, fmt.Errorf("load previous sync: %w", err)
	}
	return d.Sync(ctx, appt, action)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, respBody, nil
}

func eventIDFromResponse(body []byte) string {
	var resp struct {
		EventID any `json:"event_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	switch v := resp.EventID.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

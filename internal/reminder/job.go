package reminder

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
	"github.com/hackgods/dental-agenda/internal/integration"
	"github.com/hackgods/dental-agenda/internal/metrics"
)

// DefaultTemplate is used when the whatsapp integration has no "plantilla"
// setting. Placeholders: {paciente}, {fecha}, {hora}.
const DefaultTemplate = "Hola {paciente}, le recordamos su cita el {fecha} a las {hora}."

const templateSetting = "plantilla"

// Repository is the slice of the appointment store the job needs.
type Repository interface {
	GetPatientByID(ctx context.Context, id int64) (*appointment.Patient, error)
	ListPendingReminders(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
}

type ConfigSource interface {
	GetConfig(ctx context.Context, t integration.Type) (*integration.Config, error)
}

// Message is the body posted to the whatsapp webhook.
type Message struct {
	Op            string `json:"accion"`
	AppointmentID int64  `json:"cita_id"`
	Phone         string `json:"telefono"`
	Text          string `json:"mensaje"`
}

type Result struct {
	Sent    int
	Failed  int
	Skipped int
}

// Job sends one reminder per upcoming appointment through the whatsapp
// integration. An appointment is reminded once: it is marked as soon as the
// webhook accepts the message.
type Job struct {
	repo    Repository
	configs ConfigSource
	client  *http.Client
	lead    time.Duration
	timeout time.Duration
	loc     *time.Location
	clock   appointment.Clock
}

type Option func(*Job)

func WithClock(c appointment.Clock) Option {
	return func(j *Job) { j.clock = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(j *Job) { j.client = c }
}

func NewJob(repo Repository, configs ConfigSource, cfg config.Config, opts ...Option) *Job {
	j := &Job{
		repo:    repo,
		configs: configs,
		client:  &http.Client{},
		lead:    cfg.ReminderLead,
		timeout: cfg.SyncTimeout,
		loc:     cfg.Location,
		clock:   appointment.SystemClock,
	}
	if j.lead <= 0 {
		j.lead = 24 * time.Hour
	}
	if j.timeout <= 0 {
		j.timeout = 10 * time.Second
	}
	if j.loc == nil {
		j.loc = time.UTC
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run reminds every pending or confirmed appointment that starts within the
// lead window and has not been reminded yet.
func (j *Job) Run(ctx context.Context) (Result, error) {
	var res Result

	cfg, err := j.configs.GetConfig(ctx, integration.TypeWhatsApp)
	if err != nil && !errors.Is(err, integration.ErrConfigNotFound) {
		return res, fmt.Errorf("load whatsapp config: %w", err)
	}
	if !cfg.Usable() {
		return res, integration.ErrIntegrationUnavailable
	}

	tmpl := cfg.Setting(templateSetting)
	if tmpl == "" {
		tmpl = DefaultTemplate
	}

	now := j.clock.Now().In(j.loc)
	horizon := now.Add(j.lead)

	due, err := j.repo.ListPendingReminders(ctx, now, horizon)
	if err != nil {
		return res, fmt.Errorf("list pending reminders: %w", err)
	}

	logger := zerolog.Ctx(ctx)

	for _, appt := range due {
		start := appt.StartAt(j.loc)
		if start.Before(now) || start.After(horizon) {
			continue
		}

		patient, err := j.repo.GetPatientByID(ctx, appt.PatientID)
		if err != nil || strings.TrimSpace(patient.Phone) == "" {
			res.Skipped++
			metrics.Reminders.WithLabelValues("skipped").Inc()
			logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("reminder skipped, no patient phone")
			continue
		}

		msg := Message{
			Op:            "recordatorio",
			AppointmentID: appt.ID,
			Phone:         patient.Phone,
			Text:          Render(tmpl, patient.FullName, start),
		}

		if err := j.send(ctx, cfg.WebhookURL, msg); err != nil {
			res.Failed++
			metrics.Reminders.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("reminder failed")
			continue
		}

		if err := j.repo.MarkReminderSent(ctx, appt.ID, j.clock.Now()); err != nil {
			logger.Error().Err(err).Int64("appointment_id", appt.ID).Msg("reminder sent but not marked")
		}
		res.Sent++
		metrics.Reminders.WithLabelValues("sent").Inc()
	}

	return res, nil
}

// Render fills a reminder template for an appointment starting at start.
func Render(tmpl, patientName string, start time.Time) string {
	return strings.NewReplacer(
		"{paciente}", patientName,
		"{fecha}", start.Format("02/01/2006"),
		"{hora}", start.Format("15:04"),
	).Replace(tmpl)
}

func (j *Job) send(ctx context.Context, url string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return nil
}

package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/dental-agenda/internal/appointment"
)

// Type identifies an external integration. Each type has at most one
// configuration row.
type Type string

const (
	TypeGoogleCalendar Type = "google_calendar"
	TypeWhatsApp       Type = "whatsapp"
	TypeEmail          Type = "email"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeGoogleCalendar, TypeWhatsApp, TypeEmail:
		return true
	}
	return false
}

// Config is the stored configuration of one integration. It is read fresh for
// every dispatch and passed by value; nothing caches it.
type Config struct {
	ID         int64
	Type       Type
	Active     bool
	WebhookURL string
	Settings   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Usable reports whether webhooks may be sent with this configuration.
func (c *Config) Usable() bool {
	return c != nil && c.Active && strings.TrimSpace(c.WebhookURL) != ""
}

// Setting returns a string setting, or "" when it is unset or not a string.
func (c *Config) Setting(key string) string {
	if c == nil || c.Settings == nil {
		return ""
	}
	s, _ := c.Settings[key].(string)
	return s
}

type SyncStatus string

const (
	SyncPending SyncStatus = "pendiente"
	SyncSuccess SyncStatus = "exitoso"
	SyncFailed  SyncStatus = "fallido"
)

func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncPending, SyncSuccess, SyncFailed:
		return true
	}
	return false
}

// SyncLog is one dispatch attempt. Rows are appended before the webhook call
// and only touched again to record the outcome.
type SyncLog struct {
	ID              int64
	AppointmentID   int64
	PatientName     string
	AppointmentDate time.Time
	AppointmentTime appointment.TimeOfDay
	Action          appointment.Action
	Status          SyncStatus
	ExternalID      *string
	Payload         json.RawMessage
	ErrorMessage    string
	CreatedAt       time.Time
}

type SyncLogFilter struct {
	AppointmentID *int64
	Status        SyncStatus
	Action        appointment.Action
	Limit         int
	Offset        int
}

var (
	ErrConfigNotFound  = errors.New("integration config not found")
	ErrSyncLogNotFound = errors.New("sync log not found")
	ErrUnknownType     = errors.New("unknown integration type")

	// ErrIntegrationUnavailable means the integration is missing, inactive or
	// has no webhook URL. Sync is skipped and nothing is logged.
	ErrIntegrationUnavailable = errors.New("integration unavailable")
)

// SyncError is a failed webhook call. The failure is already recorded in the
// sync log when it is returned.
type SyncError struct {
	LogID      int64
	StatusCode int
	Body       string
	Err        error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *SyncError) Unwrap() error { return e.Err }

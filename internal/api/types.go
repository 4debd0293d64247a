package api

import (
	"encoding/json"
	"time"

	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/integration"
)

type CreateAppointmentRequest struct {
	PatientID       int64  `json:"patient_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason"`
	Notes           string `json:"notes"`
	CreatedBy       *int64 `json:"created_by,omitempty"`
}

// UpdateAppointmentRequest is a partial update: omitted fields keep their value.
type UpdateAppointmentRequest struct {
	PatientID       *int64  `json:"patient_id"`
	Date            *string `json:"date"`
	Time            *string `json:"time"`
	DurationMinutes *int    `json:"duration_minutes"`
	Reason          *string `json:"reason"`
	Notes           *string `json:"notes"`
}

type PatientResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	DNI      string `json:"dni"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

type AppointmentResponse struct {
	ID              int64                 `json:"id"`
	PatientID       int64                 `json:"patient_id"`
	Patient         *PatientResponse      `json:"patient,omitempty"`
	Date            string                `json:"date"`
	Time            appointment.TimeOfDay `json:"time"`
	EndTime         appointment.TimeOfDay `json:"end_time"`
	DurationMinutes int                   `json:"duration_minutes"`
	Reason          string                `json:"reason"`
	Notes           string                `json:"notes,omitempty"`
	Status          string                `json:"status"`
	ReminderSent    bool                  `json:"reminder_sent"`
	CanEdit         bool                  `json:"can_edit"`
	CanCancel       bool                  `json:"can_cancel"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type SyncLogResponse struct {
	ID              int64           `json:"id"`
	AppointmentID   int64           `json:"appointment_id"`
	PatientName     string          `json:"patient_name"`
	AppointmentDate string          `json:"appointment_date"`
	AppointmentTime string          `json:"appointment_time"`
	Action          string          `json:"action"`
	Status          string          `json:"status"`
	ExternalID      *string         `json:"external_event_id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type SyncLogListResponse struct {
	Items []SyncLogResponse `json:"items"`
	Total int               `json:"total"`
}

type IntegrationConfigRequest struct {
	Active     bool           `json:"active"`
	WebhookURL string         `json:"webhook_url"`
	Config     map[string]any `json:"config"`
}

type IntegrationConfigResponse struct {
	Type       string         `json:"type"`
	Active     bool           `json:"active"`
	WebhookURL string         `json:"webhook_url"`
	Config     map[string]any `json:"config"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ValidationErrorResponse reports a broken scheduling rule.
type ValidationErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Details    string `json:"details"`
	ConflictID *int64 `json:"conflict_id,omitempty"`
}

func toPatientResponse(p *appointment.Patient) *PatientResponse {
	if p == nil {
		return nil
	}
	return &PatientResponse{ID: p.ID, FullName: p.FullName, DNI: p.DNI, Phone: p.Phone, Email: p.Email}
}

func toAppointmentResponse(a *appointment.Appointment, p *appointment.Patient, now time.Time) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		Patient:         toPatientResponse(p),
		Date:            a.Date.Format(time.DateOnly),
		Time:            a.Time,
		EndTime:         a.EndTime(),
		DurationMinutes: a.DurationMinutes,
		Reason:          a.Reason,
		Notes:           a.Notes,
		Status:          string(a.Status),
		ReminderSent:    a.ReminderSent,
		CanEdit:         a.CanEdit(),
		CanCancel:       a.CanCancel(now),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toSyncLogResponse(l *integration.SyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:              l.ID,
		AppointmentID:   l.AppointmentID,
		PatientName:     l.PatientName,
		AppointmentDate: l.AppointmentDate.Format(time.DateOnly),
		AppointmentTime: l.AppointmentTime.String(),
		Action:          string(l.Action),
		Status:          string(l.Status),
		ExternalID:      l.ExternalID,
		Payload:         l.Payload,
		ErrorMessage:    l.ErrorMessage,
		CreatedAt:       l.CreatedAt,
	}
}

func toIntegrationConfigResponse(c *integration.Config) IntegrationConfigResponse {
	settings := c.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	return IntegrationConfigResponse{
		Type:       string(c.Type),
		Active:     c.Active,
		WebhookURL: c.WebhookURL,
		Config:     settings,
		UpdatedAt:  c.UpdatedAt,
	}
}

package integration

import (
	"fmt"
	"time"

	"github.com/hackgods/dental-agenda/internal/appointment"
)

// Webhook operation names understood by the calendar automation.
const (
	opCreateEvent = "crear_evento"
	opUpdateEvent = "actualizar_evento"
	opDeleteEvent = "eliminar_evento"
)

const defaultReason = "Consulta general"

// Payload is the body of a calendar webhook. The set of implementations is
// closed: CreatePayload, UpdatePayload and DeletePayload.
type Payload interface {
	SyncAction() appointment.Action
	payload()
}

type CreatePayload struct {
	Op            string `json:"accion"`
	EventID       string `json:"event_id"`
	AppointmentID int64  `json:"cita_id"`
	Title         string `json:"titulo"`
	Description   string `json:"descripcion"`
	Start         string `json:"fecha_inicio"`
	End           string `json:"fecha_fin"`
	Location      string `json:"ubicacion"`
	Color         string `json:"color"`
}

type UpdatePayload struct {
	Op            string `json:"accion"`
	EventID       string `json:"event_id"`
	AppointmentID int64  `json:"cita_id"`
	Title         string `json:"titulo"`
	Description   string `json:"descripcion"`
	Start         string `json:"fecha_inicio"`
	End           string `json:"fecha_fin"`
}

type DeletePayload struct {
	Op            string `json:"accion"`
	EventID       string `json:"event_id"`
	AppointmentID int64  `json:"cita_id"`
}

func (CreatePayload) SyncAction() appointment.Action { return appointment.ActionCreate }
func (UpdatePayload) SyncAction() appointment.Action { return appointment.ActionUpdate }
func (DeletePayload) SyncAction() appointment.Action { return appointment.ActionDelete }

func (CreatePayload) payload() {}
func (UpdatePayload) payload() {}
func (DeletePayload) payload() {}

// EventID is the calendar event id derived from the appointment id. Calendar
// ids only accept base32hex characters, so it has no separators.
func EventID(appointmentID int64) string {
	return fmt.Sprintf("cita%d", appointmentID)
}

// EventDefaults are the practice-wide fields stamped on created events.
type EventDefaults struct {
	Location string
	Color    string
}

// BuildPayload renders the webhook body for action. eventID is the id the
// calendar knows the event by; times are rendered in loc.
func BuildPayload(action appointment.Action, appt appointment.Appointment, patient appointment.Patient,
	eventID string, loc *time.Location, defaults EventDefaults) (Payload, error) {

	if loc == nil {
		loc = time.UTC
	}

	title := "Cita: " + patient.FullName
	reason := appt.Reason
	if reason == "" {
		reason = defaultReason
	}
	description := fmt.Sprintf("Paciente: %s\nTeléfono: %s\nMotivo: %s", patient.FullName, patient.Phone, reason)
	start := appt.StartAt(loc).Format(time.RFC3339)
	end := appt.EndAt(loc).Format(time.RFC3339)

	switch action {
	case appointment.ActionCreate:
		return CreatePayload{
			Op:            opCreateEvent,
			EventID:       eventID,
			AppointmentID: appt.ID,
			Title:         title,
			Description:   description,
			Start:         start,
			End:           end,
			Location:      defaults.Location,
			Color:         defaults.Color,
		}, nil
	case appointment.ActionUpdate:
		return UpdatePayload{
			Op:            opUpdateEvent,
			EventID:       eventID,
			AppointmentID: appt.ID,
			Title:         title,
			Description:   description,
			Start:         start,
			End:           end,
		}, nil
	case appointment.ActionDelete:
		return DeletePayload{
			Op:            opDeleteEvent,
			EventID:       eventID,
			AppointmentID: appt.ID,
		}, nil
	}
	return nil, fmt.Errorf("unknown sync action %q", action)
}

package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-agenda/internal/appointment"
)

func samplePayloadInputs() (appointment.Appointment, appointment.Patient) {
	appt := appointment.Appointment{
		ID:              7,
		PatientID:       1,
		Date:            time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Time:            appointment.MustParseTimeOfDay("17:45"),
		DurationMinutes: 45,
	}
	patient := appointment.Patient{ID: 1, FullName: "Ana Torres", Phone: "999888777"}
	return appt, patient
}

func TestEventID_IsBase32HexSafe(t *testing.T) {
	id := EventID(120)
	assert.Equal(t, "cita120", id)
	assert.Regexp(t, `^[a-v0-9]+$`, id)
}

func TestBuildPayload_Create(t *testing.T) {
	appt, patient := samplePayloadInputs()

	p, err := BuildPayload(appointment.ActionCreate, appt, patient, "cita7", time.UTC,
		EventDefaults{Location: "Consultorio Dental", Color: "9"})
	require.NoError(t, err)

	create, ok := p.(CreatePayload)
	require.True(t, ok)
	assert.Equal(t, appointment.ActionCreate, create.SyncAction())
	assert.Equal(t, "crear_evento", create.Op)
	assert.Equal(t, "Paciente: Ana Torres\nTeléfono: 999888777\nMotivo: Consulta general", create.Description)
	assert.Equal(t, "2025-03-10T17:45:00Z", create.Start)
	assert.Equal(t, "2025-03-10T18:30:00Z", create.End)
}

func TestBuildPayload_UpdateUsesReason(t *testing.T) {
	appt, patient := samplePayloadInputs()
	appt.Reason = "Control de ortodoncia"

	p, err := BuildPayload(appointment.ActionUpdate, appt, patient, "ev-9", time.UTC, EventDefaults{})
	require.NoError(t, err)

	update, ok := p.(UpdatePayload)
	require.True(t, ok)
	assert.Equal(t, "actualizar_evento", update.Op)
	assert.Equal(t, "ev-9", update.EventID)
	assert.Contains(t, update.Description, "Motivo: Control de ortodoncia")
}

func TestBuildPayload_Delete(t *testing.T) {
	appt, patient := samplePayloadInputs()

	p, err := BuildPayload(appointment.ActionDelete, appt, patient, "cita7", time.UTC, EventDefaults{})
	require.NoError(t, err)
	assert.Equal(t, DeletePayload{Op: "eliminar_evento", EventID: "cita7", AppointmentID: 7}, p)
}

func TestBuildPayload_UnknownAction(t *testing.T) {
	appt, patient := samplePayloadInputs()

	_, err := BuildPayload(appointment.Action("archivar"), appt, patient, "cita7", time.UTC, EventDefaults{})
	assert.Error(t, err)
}

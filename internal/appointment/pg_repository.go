package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	a.id, a.patient_id, a.scheduled_date, a.scheduled_time, a.duration_minutes,
	a.reason, a.notes, a.status, a.reminder_sent, a.reminder_at, a.created_by,
	a.created_at, a.updated_at`

const patientColumns = `p.id, p.full_name, p.dni, p.phone, p.email, p.created_at, p.updated_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.FullName,
		&p.DNI,
		&p.Phone,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func appointmentDest(a *Appointment, date *time.Time, tm *pgtype.Time) []any {
	return []any{
		&a.ID,
		&a.PatientID,
		date,
		tm,
		&a.DurationMinutes,
		&a.Reason,
		&a.Notes,
		&a.Status,
		&a.ReminderSent,
		&a.ReminderAt,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func finishAppointment(a *Appointment, date time.Time, tm pgtype.Time) {
	a.Date = CivilDate(date)
	a.Time = fromPgTime(tm)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var tm pgtype.Time

	if err := row.Scan(appointmentDest(&a, &date, &tm)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	finishAppointment(&a, date, tm)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Minutes()) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDayFromMinutes(int(t.Microseconds / int64(time.Minute/time.Microsecond)))
}

// Patients

func (r *PgRepository) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients p
		WHERE p.id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients AS p (full_name, dni, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+patientColumns,
		p.FullName, p.DNI, p.Phone, p.Email)
	return scanPatient(row)
}

func (r *PgRepository) ListPatientIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM patients ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveOnDate(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.scheduled_date = $1
		  AND a.status IN ('pending', 'confirmed', 'in_progress')
		ORDER BY a.scheduled_time
	`, CivilDate(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.DateFrom != nil {
		where = append(where, "a.scheduled_date >= "+arg(CivilDate(*f.DateFrom)))
	}
	if f.DateTo != nil {
		where = append(where, "a.scheduled_date <= "+arg(CivilDate(*f.DateTo)))
	}
	if f.Patient != "" {
		p := arg("%" + f.Patient + "%")
		where = append(where, "(p.full_name ILIKE "+p+" OR p.dni ILIKE "+p+")")
	}
	if f.Status != "" {
		where = append(where, "a.status = "+arg(f.Status))
	}

	query := `
		SELECT ` + appointmentColumns + `, ` + patientColumns + `, COUNT(*) OVER ()
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += `
		ORDER BY a.scheduled_date DESC, a.scheduled_time DESC
		LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		result []AppointmentDetail
		total  int
	)
	for rows.Next() {
		var d AppointmentDetail
		var p Patient
		var date time.Time
		var tm pgtype.Time

		dest := appointmentDest(&d.Appointment, &date, &tm)
		dest = append(dest, &p.ID, &p.FullName, &p.DNI, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt, &total)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, err
		}
		finishAppointment(&d.Appointment, date, tm)
		d.Patient = &p
		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) Summarize(ctx context.Context, today time.Time) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE scheduled_date = $1),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'confirmed')
		FROM appointments
	`, CivilDate(today)).Scan(&s.Total, &s.Today, &s.Pending, &s.Confirmed)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize appointments: %w", err)
	}
	return s, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments AS a (
			patient_id, scheduled_date, scheduled_time, duration_minutes,
			reason, notes, status, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		a.PatientID, CivilDate(a.Date), toPgTime(a.Time), a.DurationMinutes,
		a.Reason, a.Notes, a.Status, a.CreatedBy)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET patient_id = $2,
		    scheduled_date = $3,
		    scheduled_time = $4,
		    duration_minutes = $5,
		    reason = $6,
		    notes = $7,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status IN ('pending', 'confirmed', 'in_progress')
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, CivilDate(a.Date), toPgTime(a.Time), a.DurationMinutes, a.Reason, a.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListPendingReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.reminder_sent = FALSE
		  AND a.status IN ('pending', 'confirmed')
		  AND a.scheduled_date BETWEEN $1 AND $2
		ORDER BY a.scheduled_date, a.scheduled_time
	`, CivilDate(from), CivilDate(to))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = TRUE,
		    reminder_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

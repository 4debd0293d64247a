package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/dental-agenda/internal/appointment"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const configColumns = `id, type, active, webhook_url, config, created_at, updated_at`

const syncLogColumns = `
	id, appointment_id, patient_name, appointment_date, appointment_time,
	action, status, external_event_id, payload, error_message, created_at`

func scanConfig(row pgx.Row) (*Config, error) {
	var c Config
	var raw []byte

	err := row.Scan(&c.ID, &c.Type, &c.Active, &c.WebhookURL, &raw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Settings); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", c.Type, err)
		}
	}
	return &c, nil
}

func scanSyncLog(row pgx.Row) (*SyncLog, error) {
	var l SyncLog
	var date time.Time
	var tm pgtype.Time
	var payload []byte

	err := row.Scan(
		&l.ID,
		&l.AppointmentID,
		&l.PatientName,
		&date,
		&tm,
		&l.Action,
		&l.Status,
		&l.ExternalID,
		&payload,
		&l.ErrorMessage,
		&l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSyncLogNotFound
		}
		return nil, err
	}

	l.AppointmentDate = appointment.CivilDate(date)
	l.AppointmentTime = appointment.TimeOfDayFromMinutes(int(tm.Microseconds / int64(time.Minute/time.Microsecond)))
	l.Payload = payload
	return &l, nil
}

func (s *PgStore) GetConfig(ctx context.Context, t Type) (*Config, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+configColumns+`
		FROM integration_configs
		WHERE type = $1
	`, t)
	return scanConfig(row)
}

func (s *PgStore) UpsertConfig(ctx context.Context, c Config) (*Config, error) {
	if !c.Type.IsValid() {
		return nil, ErrUnknownType
	}

	settings := c.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", c.Type, err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO integration_configs (type, active, webhook_url, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (type) DO UPDATE
		SET active = EXCLUDED.active,
		    webhook_url = EXCLUDED.webhook_url,
		    config = EXCLUDED.config,
		    updated_at = now()
		RETURNING `+configColumns,
		c.Type, c.Active, c.WebhookURL, raw)
	return scanConfig(row)
}

func (s *PgStore) InsertSyncLog(ctx context.Context, l SyncLog) (*SyncLog, error) {
	if l.Status == "" {
		l.Status = SyncPending
	}
	tm := pgtype.Time{
		Microseconds: int64(l.AppointmentTime.Minutes()) * int64(time.Minute/time.Microsecond),
		Valid:        true,
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO calendar_sync_logs (
			appointment_id, patient_name, appointment_date, appointment_time,
			action, status, external_event_id, payload, error_message, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING `+syncLogColumns,
		l.AppointmentID, l.PatientName, appointment.CivilDate(l.AppointmentDate), tm,
		l.Action, l.Status, l.ExternalID, []byte(l.Payload), l.ErrorMessage)
	return scanSyncLog(row)
}

func (s *PgStore) FinishSyncLog(ctx context.Context, id int64, status SyncStatus, externalID *string, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE calendar_sync_logs
		SET status = $2,
		    external_event_id = $3,
		    error_message = $4
		WHERE id = $1
	`, id, status, externalID, errMsg)
	if err != nil {
		return fmt.Errorf("finish sync log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncLogNotFound
	}
	return nil
}

func (s *PgStore) LastSuccessfulSync(ctx context.Context, appointmentID int64) (*SyncLog, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+syncLogColumns+`
		FROM calendar_sync_logs
		WHERE appointment_id = $1
		  AND status = 'exitoso'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, appointmentID)
	return scanSyncLog(row)
}

func (s *PgStore) ListSyncLogs(ctx context.Context, f SyncLogFilter) ([]SyncLog, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.AppointmentID != nil {
		where = append(where, "appointment_id = "+arg(*f.AppointmentID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if f.Action != "" {
		where = append(where, "action = "+arg(f.Action))
	}

	query := `SELECT ` + syncLogColumns + `, COUNT(*) OVER () FROM calendar_sync_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		result []SyncLog
		total  int
	)
	for rows.Next() {
		var l SyncLog
		var date time.Time
		var tm pgtype.Time
		var payload []byte

		if err := rows.Scan(
			&l.ID, &l.AppointmentID, &l.PatientName, &date, &tm,
			&l.Action, &l.Status, &l.ExternalID, &payload, &l.ErrorMessage, &l.CreatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		l.AppointmentDate = appointment.CivilDate(date)
		l.AppointmentTime = appointment.TimeOfDayFromMinutes(int(tm.Microseconds / int64(time.Minute/time.Microsecond)))
		l.Payload = payload
		result = append(result, l)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

var _ Store = (*PgStore)(nil)

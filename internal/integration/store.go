package integration

import (
	"context"
)

// Store persists integration configuration and the calendar sync log.
type Store interface {
	GetConfig(ctx context.Context, t Type) (*Config, error)
	UpsertConfig(ctx context.Context, c Config) (*Config, error)

	InsertSyncLog(ctx context.Context, l SyncLog) (*SyncLog, error)
	// FinishSyncLog records the outcome of the attempt started by InsertSyncLog.
	FinishSyncLog(ctx context.Context, id int64, status SyncStatus, externalID *string, errMsg string) error
	// LastSuccessfulSync returns the newest exitoso row for the appointment,
	// or ErrSyncLogNotFound.
	LastSuccessfulSync(ctx context.Context, appointmentID int64) (*SyncLog, error)
	ListSyncLogs(ctx context.Context, f SyncLogFilter) ([]SyncLog, int, error)
}

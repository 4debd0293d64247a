package integration

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hackgods/dental-agenda/internal/appointment"
)

// SyncHook runs the dispatcher after every committed appointment write.
// Sync failures are logged and stop here; the write has already succeeded.
type SyncHook struct {
	d *Dispatcher
}

func NewSyncHook(d *Dispatcher) *SyncHook {
	return &SyncHook{d: d}
}

func (h *SyncHook) AfterCommit(ctx context.Context, ev appointment.Event) {
	logger := zerolog.Ctx(ctx)

	entry, err := h.d.Sync(ctx, ev.Appointment, ev.Action)
	if err == nil {
		return
	}

	if errors.Is(err, ErrIntegrationUnavailable) {
		logger.Debug().
			Int64("appointment_id", ev.Appointment.ID).
			Msg("calendar integration unavailable, sync skipped")
		return
	}

	e := logger.Warn().
		Err(err).
		Int64("appointment_id", ev.Appointment.ID).
		Str("action", string(ev.Action))
	if entry != nil {
		e = e.Int64("sync_log_id", entry.ID)
	}
	e.Msg("calendar sync failed")
}

var _ appointment.Hook = (*SyncHook)(nil)

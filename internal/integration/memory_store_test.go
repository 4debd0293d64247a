package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-agenda/internal/appointment"
)

func TestMemoryStore_SameInstantOrdersByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tick := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return tick }

	ids := make([]int64, 0, 3)
	for _, ext := range []string{"gcal-1", "gcal-2", "gcal-3"} {
		l, err := s.InsertSyncLog(ctx, SyncLog{AppointmentID: 7, Action: appointment.ActionUpdate})
		require.NoError(t, err)
		assert.Equal(t, tick, l.CreatedAt)
		require.NoError(t, s.FinishSyncLog(ctx, l.ID, SyncSuccess, &ext, ""))
		ids = append(ids, l.ID)
	}

	last, err := s.LastSuccessfulSync(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, ids[2], last.ID)
	assert.Equal(t, "gcal-3", *last.ExternalID)

	logs, total, err := s.ListSyncLogs(ctx, SyncLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, logs, 3)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{logs[0].ID, logs[1].ID, logs[2].ID})
}

func TestMemoryStore_NewerTimestampWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tick := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return tick }

	older, err := s.InsertSyncLog(ctx, SyncLog{AppointmentID: 7, Action: appointment.ActionCreate})
	require.NoError(t, err)
	require.NoError(t, s.FinishSyncLog(ctx, older.ID, SyncSuccess, nil, ""))

	tick = tick.Add(time.Minute)
	newer, err := s.InsertSyncLog(ctx, SyncLog{AppointmentID: 7, Action: appointment.ActionUpdate})
	require.NoError(t, err)
	require.NoError(t, s.FinishSyncLog(ctx, newer.ID, SyncFailed, nil, "timeout"))

	last, err := s.LastSuccessfulSync(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, older.ID, last.ID, "failed attempts are not successes")

	logs, _, err := s.ListSyncLogs(ctx, SyncLogFilter{AppointmentID: &older.AppointmentID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, newer.ID, logs[0].ID)
}

package appointment

import (
	"context"
	"time"
)

// Event is published after an appointment write has been committed.
type Event struct {
	Action      Action
	Appointment Appointment
	OccurredAt  time.Time
}

// Hook consumes committed appointment events. Hooks run synchronously on the
// write path and must not fail it: whatever goes wrong stays inside the hook.
type Hook interface {
	AfterCommit(ctx context.Context, ev Event)
}

type HookFunc func(ctx context.Context, ev Event)

func (f HookFunc) AfterCommit(ctx context.Context, ev Event) { f(ctx, ev) }

package appointment

import (
	"fmt"
	"slices"
	"time"
)

// Transition names a lifecycle operation on an appointment.
//
//	pending → confirmed → in_progress → completed
//	pending | confirmed → no_show
//	pending | confirmed | in_progress → cancelled
type Transition string

const (
	TransitionConfirm  Transition = "confirm"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionNoShow   Transition = "no_show"
	TransitionCancel   Transition = "cancel"
)

type transitionRule struct {
	from []AppointmentStatus
	to   AppointmentStatus
}

var transitionRules = map[Transition]transitionRule{
	TransitionConfirm: {
		from: []AppointmentStatus{StatusPending},
		to:   StatusConfirmed,
	},
	TransitionStart: {
		from: []AppointmentStatus{StatusConfirmed},
		to:   StatusInProgress,
	},
	TransitionComplete: {
		from: []AppointmentStatus{StatusPending, StatusConfirmed, StatusInProgress},
		to:   StatusCompleted,
	},
	TransitionNoShow: {
		from: []AppointmentStatus{StatusPending, StatusConfirmed},
		to:   StatusNoShow,
	},
	TransitionCancel: {
		from: []AppointmentStatus{StatusPending, StatusConfirmed, StatusInProgress},
		to:   StatusCancelled,
	},
}

// Apply returns the status reached by applying t to from. A transition that
// is not allowed from the current status yields ErrTransitionRejected and the
// caller must leave the appointment untouched.
func (t Transition) Apply(from AppointmentStatus) (AppointmentStatus, error) {
	rule, ok := transitionRules[t]
	if !ok {
		return from, fmt.Errorf("%w: unknown transition %q", ErrTransitionRejected, t)
	}
	if !slices.Contains(rule.from, from) {
		return from, fmt.Errorf("%w: cannot %s an appointment that is %s", ErrTransitionRejected, t, from)
	}
	return rule.to, nil
}

// Action is the sync action published once the transition is persisted.
func (t Transition) Action() Action {
	if t == TransitionCancel {
		return ActionDelete
	}
	return ActionUpdate
}

// CanEdit reports whether the appointment details may still be changed.
func (a *Appointment) CanEdit() bool {
	return !a.Status.IsTerminal()
}

// CanCancel reports whether the patient-facing cancel action should be
// offered: the appointment must be active and not yet started.
func (a *Appointment) CanCancel(now time.Time) bool {
	if a.Status.IsTerminal() {
		return false
	}
	return !a.IsPast(now)
}

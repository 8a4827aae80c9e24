package engine

import (
	"time"

	"github.com/example/revbot/pkg/models"
)

// State is the lifecycle state of a revision. Scheduled, Due and
// Notified are functions of wall-clock time; only Completed is
// persisted as a terminal flag.
type State int

const (
	// StateScheduled means the due timestamp is still in the future.
	StateScheduled State = iota
	// StateDue means the revision is due and eligible for a reminder.
	StateDue
	// StateNotified means the revision is due but a reminder went out
	// within the throttle window, so resends are suppressed.
	StateNotified
	// StateCompleted is terminal for the stage.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateDue:
		return "due"
	case StateNotified:
		return "notified"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StateOf derives a revision's state at the given time. The throttle
// window controls how long a sent reminder suppresses the next one;
// the due timestamp itself is never moved by notification.
func StateOf(rev models.Revision, now time.Time, throttle time.Duration) State {
	if rev.Completed {
		return StateCompleted
	}
	if rev.DueAt.After(now) {
		return StateScheduled
	}
	if rev.LastNotifiedAt != nil && now.Sub(*rev.LastNotifiedAt) < throttle {
		return StateNotified
	}
	return StateDue
}

package workflow

import (
	"fmt"
	"time"
)

// Lifecycle is the status and timestamps shared by stories and tasks.
type Lifecycle struct {
	Status         Status    `json:"status"`
	PreBlockStatus Status    `json:"pre_block_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (l *Lifecycle) lifecycle() *Lifecycle { return l }

// Item is anything carrying a Lifecycle.
type Item interface {
	lifecycle() *Lifecycle
}

var validTransitions = map[Status]map[Status]bool{
	StatusTodo: {
		StatusInProgress: true,
		StatusBlocked:    true,
	},
	StatusInProgress: {
		StatusInReview: true,
		StatusTesting:  true,
		StatusDone:     true,
		StatusBlocked:  true,
	},
	StatusInReview: {
		StatusTesting: true,
		StatusDone:    true,
		StatusBlocked: true,
	},
	StatusTesting: {
		StatusDone:    true,
		StatusBlocked: true,
	},
	StatusBlocked: {
		StatusTodo:       true,
		StatusInProgress: true,
		StatusInReview:   true,
		StatusTesting:    true,
	},
	StatusDone: {},
}

// backwardMoves is the fixed downgrade map for returning work to an earlier stage.
var backwardMoves = map[Status]Status{
	StatusInReview: StatusInProgress,
	StatusTesting:  StatusInReview,
}

func IsValidStatus(s Status) bool {
	_, ok := validTransitions[s]
	return ok
}

// IsActive reports whether work is underway in s.
func IsActive(s Status) bool {
	return s == StatusInProgress || s == StatusInReview || s == StatusTesting
}

// ValidateTransition checks a move against the forward graph.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	next, ok := validTransitions[from]
	if !ok || !next[to] {
		return invalidState("transition", from, fmt.Sprintf("cannot move to %s", to))
	}
	return nil
}

func touch(l *Lifecycle, now time.Time) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if now.After(l.UpdatedAt) {
		l.UpdatedAt = now
	}
}

// Touch records an edit that leaves the status alone.
func Touch(item Item, now time.Time) {
	touch(item.lifecycle(), now)
}

// Start moves a TODO item to IN_PROGRESS and reports whether it did.
func Start(item Item, now time.Time) bool {
	l := item.lifecycle()
	if l.Status != StatusTodo {
		return false
	}
	l.Status = StatusInProgress
	touch(l, now)
	return true
}

func Complete(item Item, now time.Time) error {
	l := item.lifecycle()
	if !IsActive(l.Status) {
		return invalidState("complete", l.Status, "work must be in progress, in review or testing")
	}
	l.Status = StatusDone
	touch(l, now)
	return nil
}

// UpdateStatus sets the status without consulting the transition graph.
// It is the only path by which an item moves backward.
func UpdateStatus(item Item, to Status, now time.Time) error {
	if !IsValidStatus(to) {
		return validationf("unknown status %q", to)
	}
	l := item.lifecycle()
	l.Status = to
	touch(l, now)
	return nil
}

// Downgrade returns the status one stage earlier than from.
func Downgrade(from Status) (Status, error) {
	to, ok := backwardMoves[from]
	if !ok {
		return "", invalidState("move backward", from, "only in_review and testing can move backward")
	}
	return to, nil
}

package task

import (
	"errors"
	"fmt"
)

// Status enumerates the lifecycle states of a task.
type Status string

const (
	StatusPending              Status = "pending"
	StatusQueued               Status = "queued"
	StatusRunning              Status = "running"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
)

// ErrIllegalTransition reports an attempt to move a task along an edge that
// is not part of the lifecycle table.
var ErrIllegalTransition = errors.New("task: illegal transition")

// transitions lists the legal edges of the task lifecycle. Terminal states
// have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:              {StatusQueued, StatusCancelled},
	StatusQueued:               {StatusRunning, StatusCancelled},
	StatusRunning:              {StatusAwaitingVerification, StatusFailed, StatusCancelled},
	StatusAwaitingVerification: {StatusCompleted, StatusRunning, StatusFailed, StatusCancelled},
	StatusCompleted:            nil,
	StatusFailed:               nil,
	StatusCancelled:            nil,
}

// Terminal reports whether the status is final and immutable.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition validates an edge and returns a descriptive error when it
// is illegal.
func checkTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("task: unknown status %q: %w", from, ErrIllegalTransition)
	}
	if !to.Valid() {
		return fmt.Errorf("task: unknown status %q: %w", to, ErrIllegalTransition)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("task: %s -> %s: %w", from, to, ErrIllegalTransition)
	}
	return nil
}

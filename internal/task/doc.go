// Package task defines the unit of work handled by the engine and the
// lifecycle state machine every task must follow. The transition table is
// the single source of truth: any mutation of a task's status goes through
// Transition, and an attempt to move along a missing edge is a programming
// error surfaced as ErrIllegalTransition, never swallowed.
package task

// Package verify runs an independent quality check over agent output using
// a second, higher-fidelity model. It only ever sees tasks that reached the
// awaiting-verification state; the scheduler decides what happens with the
// verdict (approve, bounded regeneration, or failure).
package verify

// Package ledger tracks cumulative model spend against a configured ceiling.
// The ledger is the only resource in the engine mutated from multiple
// workers, so every access runs under a single mutex: a threshold check is
// atomic with the increment that may trip it.
package ledger

import (
	"fmt"
	"sync"
)

// Status reports whether admission may proceed.
type Status string

const (
	StatusOK                      Status = "ok"
	StatusPausedNeedsConfirmation Status = "paused_needs_confirmation"
)

// Ledger is the serialized running total of spend. The total never
// decreases; crossing the ceiling sets the paused flag until an operator
// confirms continuation.
type Ledger struct {
	mu       sync.Mutex
	total    float64
	limit    float64
	paused   bool
	tracking bool
	repo     *Repository
}

// Option customizes ledger construction.
type Option func(*Ledger)

// WithRepository attaches durable storage. The persisted total and paused
// flag are restored during New and rewritten after every update.
func WithRepository(repo *Repository) Option {
	return func(l *Ledger) {
		l.repo = repo
	}
}

// WithTrackingDisabled keeps accumulating but never pauses admission.
func WithTrackingDisabled() Option {
	return func(l *Ledger) {
		l.tracking = false
	}
}

// New creates a ledger with the given spend ceiling in USD.
func New(limitUSD float64, opts ...Option) (*Ledger, error) {
	if limitUSD < 0 {
		return nil, fmt.Errorf("ledger: limit must be non-negative, got %v", limitUSD)
	}
	l := &Ledger{limit: limitUSD, tracking: true}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.repo != nil {
		snapshot, err := l.repo.Load()
		if err != nil {
			return nil, err
		}
		l.total = snapshot.TotalUSD
		l.paused = snapshot.Paused
	}
	return l, nil
}

// RecordUsage adds amount to the running total and returns the new total.
// The increment and the threshold check happen under one lock so no worker
// can observe an unpaused ledger after its own spend tripped the ceiling.
func (l *Ledger) RecordUsage(amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("ledger: negative usage %v", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total += amount
	if l.tracking && l.limit > 0 && l.total >= l.limit {
		l.paused = true
	}
	l.persistLocked()
	return l.total, nil
}

// CheckThreshold reports whether new work may be admitted.
func (l *Ledger) CheckThreshold() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		return StatusPausedNeedsConfirmation
	}
	return StatusOK
}

// ConfirmContinue clears the paused flag without touching the total. It is
// idempotent: confirming an unpaused ledger is a no-op.
func (l *Ledger) ConfirmContinue() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		return
	}
	l.paused = false
	l.persistLocked()
}

// Total returns the current running total in USD.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Limit returns the configured ceiling in USD.
func (l *Ledger) Limit() float64 {
	return l.limit
}

// Paused reports the raw paused flag.
func (l *Ledger) Paused() bool {
	return l.CheckThreshold() == StatusPausedNeedsConfirmation
}

func (l *Ledger) persistLocked() {
	if l.repo == nil {
		return
	}
	// Persistence failures must not abort accounting; the in-memory ledger
	// stays authoritative for the life of the process.
	_ = l.repo.Save(Snapshot{TotalUSD: l.total, Paused: l.paused})
}

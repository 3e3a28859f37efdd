package model

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 500 * time.Millisecond
)

// Retry decorates an Invoker with a fixed attempt budget and doubling
// backoff for transient provider errors. Permanent errors and context
// cancellation return immediately.
type Retry struct {
	next     Invoker
	attempts int
	backoff  time.Duration
	sleep    func(context.Context, time.Duration) error
}

// RetryOption customizes the retry decorator.
type RetryOption func(*Retry)

// WithAttempts sets the total attempt budget (including the first call).
func WithAttempts(n int) RetryOption {
	return func(r *Retry) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithBackoff sets the initial backoff between attempts.
func WithBackoff(d time.Duration) RetryOption {
	return func(r *Retry) {
		if d > 0 {
			r.backoff = d
		}
	}
}

// WithSleep injects the sleep function (tests pass a no-op).
func WithSleep(sleep func(context.Context, time.Duration) error) RetryOption {
	return func(r *Retry) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRetry wraps next with retry behavior.
func NewRetry(next Invoker, opts ...RetryOption) (*Retry, error) {
	if next == nil {
		return nil, fmt.Errorf("model: retry requires an invoker")
	}
	r := &Retry{
		next:     next,
		attempts: defaultRetryAttempts,
		backoff:  defaultRetryBackoff,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Invoke implements Invoker.
func (r *Retry) Invoke(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	delay := r.backoff
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, err := r.next.Invoke(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return Response{}, err
		}
		if attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
		delay *= 2
	}
	return Response{}, fmt.Errorf("model: %d attempts exhausted: %w", r.attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

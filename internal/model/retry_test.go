package model

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	calls := 0
	next := InvokerFunc(func(ctx context.Context, req Request) (Response, error) {
		calls++
		if calls < 3 {
			return Response{}, &ProviderError{Model: req.Model, Transient: true, Err: errors.New("rate limited")}
		}
		return Response{Text: "ok", TokensUsed: 10, CostUSD: 0.01}, nil
	})
	r, err := NewRetry(next, WithAttempts(3), WithSleep(noSleep))
	if err != nil {
		t.Fatalf("NewRetry: %v", err)
	}
	resp, err := r.Invoke(context.Background(), Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Text != "ok" || calls != 3 {
		t.Fatalf("resp=%+v calls=%d", resp, calls)
	}
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	calls := 0
	next := InvokerFunc(func(ctx context.Context, req Request) (Response, error) {
		calls++
		return Response{}, &ProviderError{Model: req.Model, Transient: true, Err: errors.New("boom")}
	})
	r, err := NewRetry(next, WithAttempts(3), WithSleep(noSleep))
	if err != nil {
		t.Fatalf("NewRetry: %v", err)
	}
	if _, err := r.Invoke(context.Background(), Request{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	next := InvokerFunc(func(ctx context.Context, req Request) (Response, error) {
		calls++
		return Response{}, &ProviderError{Model: req.Model, Transient: false, Err: errors.New("bad key")}
	})
	r, err := NewRetry(next, WithAttempts(3), WithSleep(noSleep))
	if err != nil {
		t.Fatalf("NewRetry: %v", err)
	}
	if _, err := r.Invoke(context.Background(), Request{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next := InvokerFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, ctx.Err()
	})
	r, err := NewRetry(next, WithAttempts(3), WithSleep(noSleep))
	if err != nil {
		t.Fatalf("NewRetry: %v", err)
	}
	if _, err := r.Invoke(ctx, Request{Model: "m", Prompt: "p"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryBackoffDoubles(t *testing.T) {
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	next := InvokerFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, &ProviderError{Model: req.Model, Transient: true, Err: errors.New("boom")}
	})
	r, err := NewRetry(next, WithAttempts(3), WithBackoff(100*time.Millisecond), WithSleep(sleep))
	if err != nil {
		t.Fatalf("NewRetry: %v", err)
	}
	if _, err := r.Invoke(context.Background(), Request{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Fatalf("delays = %v", delays)
	}
}

func TestPricingCost(t *testing.T) {
	p := Pricing{"gpt-4o": 0.01}
	if got := p.Cost("gpt-4o", 2000); got != 0.02 {
		t.Fatalf("cost = %v, want 0.02", got)
	}
	if got := p.Cost("unknown", 1000); got != defaultPricePer1K {
		t.Fatalf("fallback cost = %v, want %v", got, defaultPricePer1K)
	}
}

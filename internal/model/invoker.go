package model

import (
	"context"
	"errors"
	"fmt"
)

// Request describes one model invocation.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the provider's answer plus its accounting.
type Response struct {
	Text       string
	TokensUsed int
	CostUSD    float64
}

// Invoker sends a prompt to a named model.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (Response, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ProviderError wraps a model call failure and records whether retrying
// could plausibly help.
type ProviderError struct {
	Model     string
	Transient bool
	Err       error
}

// Error implements error.
func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("model %s: %s provider error: %v", e.Model, kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a provider error worth retrying.
// Context cancellation is never transient: the caller gave up.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

func (req Request) validate() error {
	if req.Model == "" {
		return fmt.Errorf("model: request model is required")
	}
	if req.Prompt == "" {
		return fmt.Errorf("model: request prompt is required")
	}
	return nil
}

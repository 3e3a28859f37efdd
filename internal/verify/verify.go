package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kingrea/foundry/internal/model"
)

// Verdict is the verifier's decision.
type Verdict string

const (
	VerdictApproved   Verdict = "approved"
	VerdictRejected   Verdict = "rejected"
	VerdictNeedsRetry Verdict = "needs_retry"
)

// Report carries the verdict and the verifier's reasoning.
type Report struct {
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	CostUSD    float64 `json:"-"`
}

// Verifier reviews raw agent output with the configured verification model.
type Verifier struct {
	invoker model.Invoker
	model   string
	enabled bool
}

// New creates a verifier bound to the given model. A disabled verifier
// approves everything without a model call.
func New(invoker model.Invoker, modelName string, enabled bool) (*Verifier, error) {
	if enabled && invoker == nil {
		return nil, fmt.Errorf("verify: invoker is required")
	}
	if enabled && modelName == "" {
		return nil, fmt.Errorf("verify: verification model is required")
	}
	return &Verifier{invoker: invoker, model: modelName, enabled: enabled}, nil
}

// Enabled reports whether verification runs at all.
func (v *Verifier) Enabled() bool {
	return v.enabled
}

const reviewSystemPrompt = "You are a strict quality reviewer. Given a task " +
	"and an answer, reply with JSON only: " +
	`{"approved": bool, "confidence": 0..1, "reason": "short explanation"}`

// Review checks output produced for prompt and returns a report. Provider
// errors bubble up unchanged so the caller's retry policy applies.
func (v *Verifier) Review(ctx context.Context, prompt, output string) (Report, error) {
	if !v.enabled {
		return Report{Verdict: VerdictApproved, Confidence: 1, Reason: "verification disabled"}, nil
	}
	resp, err := v.invoker.Invoke(ctx, model.Request{
		Model:  v.model,
		System: reviewSystemPrompt,
		Prompt: fmt.Sprintf("Task:\n%s\n\nAnswer:\n%s", prompt, output),
	})
	if err != nil {
		return Report{}, err
	}
	report := parseReview(resp.Text)
	report.CostUSD = resp.CostUSD
	return report, nil
}

type reviewReply struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// parseReview extracts a verdict from the model reply. It looks for the
// first JSON object; when that fails it falls back to scanning for an
// APPROVED/REJECTED token, and an unreadable reply means needs-retry.
func parseReview(text string) Report {
	if raw, ok := firstJSONObject(text); ok {
		var reply reviewReply
		if err := json.Unmarshal([]byte(raw), &reply); err == nil {
			verdict := VerdictRejected
			if reply.Approved {
				verdict = VerdictApproved
			}
			return Report{Verdict: verdict, Confidence: reply.Confidence, Reason: reply.Reason}
		}
	}
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "APPROVED"):
		return Report{Verdict: VerdictApproved, Reason: strings.TrimSpace(text)}
	case strings.Contains(upper, "REJECTED"):
		return Report{Verdict: VerdictRejected, Reason: strings.TrimSpace(text)}
	default:
		return Report{Verdict: VerdictNeedsRetry, Reason: "unreadable verifier reply"}
	}
}

func firstJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

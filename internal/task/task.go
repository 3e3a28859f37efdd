package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type tags a task with the agent capability it requires.
type Type string

// Verdict records the outcome of the verification stage.
type Verdict string

const (
	VerdictNone     Verdict = ""
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// Progress checkpoints reported while a task moves through its lifecycle.
const (
	ProgressQueued    = 0
	ProgressRunning   = 20
	ProgressVerifying = 80
	ProgressDone      = 100
)

// Task is a single unit of work owned by the orchestrator. Components other
// than the orchestrator's store never mutate a Task directly.
type Task struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Prompt    string    `json:"prompt"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CostUSD   float64   `json:"cost_usd"`
	Attempts  int       `json:"attempts"`
	Result    string    `json:"result,omitempty"`
	Verdict   Verdict   `json:"verdict,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// New creates a pending task with a fresh unique id.
func New(taskType Type, prompt string, now time.Time) (*Task, error) {
	if taskType == "" {
		return nil, fmt.Errorf("task: type is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("task: prompt is required")
	}
	return &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Prompt:    prompt,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the task along a legal lifecycle edge and stamps the
// update time. It fails with ErrIllegalTransition otherwise.
func (t *Task) Transition(to Status, now time.Time) error {
	if err := checkTransition(t.Status, to); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = to
	t.UpdatedAt = now
	switch to {
	case StatusRunning:
		t.Progress = ProgressRunning
	case StatusAwaitingVerification:
		t.Progress = ProgressVerifying
	case StatusCompleted:
		t.Progress = ProgressDone
	}
	return nil
}

// Clone returns a copy safe to hand to other components.
func (t *Task) Clone() Task {
	return *t
}

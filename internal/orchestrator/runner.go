package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/foundry/internal/agent"
	"github.com/kingrea/foundry/internal/knowledge"
	"github.com/kingrea/foundry/internal/ledger"
	"github.com/kingrea/foundry/internal/logbook"
	"github.com/kingrea/foundry/internal/model"
	"github.com/kingrea/foundry/internal/task"
	"github.com/kingrea/foundry/internal/verify"
)

const knowledgeContextSize = 3

// runner executes one task per call on a scheduler worker. Each call drives
// the task from running to a terminal or awaiting state; regeneration after
// a rejected verification stays inside the same call.
type runner struct {
	store      *Store
	registry   *agent.Registry
	invoker    model.Invoker
	verifier   *verify.Verifier
	ledger     *ledger.Ledger
	knowledge  knowledge.Store
	log        *logbook.Logbook
	timeout    time.Duration
	retryLimit int
	backoff    time.Duration
	sleep      func(context.Context, time.Duration) error
}

// Execute implements scheduler.Executor. The task is already in the running
// state when the scheduler hands it over.
func (r *runner) Execute(ctx context.Context, id string) {
	snapshot, err := r.store.Get(id)
	if err != nil {
		r.log.Error("worker: %v", err)
		return
	}
	desc, err := r.registry.Resolve(snapshot.Type)
	if err != nil {
		// Submission validates the type, so a miss here means the registry
		// changed underneath us. Surface it as a task failure.
		r.fail(id, fmt.Sprintf("resolve agent: %v", err))
		return
	}

	delay := r.backoff
	for attempt := 1; attempt <= r.retryLimit; attempt++ {
		_ = r.store.Update(id, func(t *task.Task) { t.Attempts = attempt })

		output, err := r.generate(ctx, desc, snapshot.Prompt, id)
		if err != nil {
			if ctx.Err() != nil {
				r.cancelTask(id, "cancelled during model invocation")
				return
			}
			if retryableInvocation(err) && attempt < r.retryLimit {
				r.log.Warn("task %s attempt %d failed, retrying: %v", id, attempt, err)
				if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
					r.cancelTask(id, "cancelled while backing off")
					return
				}
				delay *= 2
				continue
			}
			r.fail(id, fmt.Sprintf("model invocation: %v", err))
			return
		}

		if err := r.store.Transition(id, task.StatusAwaitingVerification); err != nil {
			r.log.Error("task %s: %v", id, err)
			return
		}
		report, err := r.verifier.Review(ctx, snapshot.Prompt, output)
		if err != nil {
			if ctx.Err() != nil {
				r.cancelTask(id, "cancelled during verification")
				return
			}
			r.fail(id, fmt.Sprintf("verification: %v", err))
			return
		}
		r.recordCost(id, report.CostUSD)

		if report.Verdict == verify.VerdictApproved {
			_ = r.store.Update(id, func(t *task.Task) {
				t.Result = output
				t.Verdict = task.VerdictApproved
				t.Error = ""
			})
			if err := r.store.Transition(id, task.StatusCompleted); err != nil {
				r.log.Error("task %s: %v", id, err)
				return
			}
			r.bridgeToKnowledge(ctx, id, snapshot.Type, output)
			return
		}

		// Rejected or unreadable: regenerate if budget remains.
		if attempt >= r.retryLimit {
			_ = r.store.Update(id, func(t *task.Task) {
				t.Verdict = task.VerdictRejected
				t.Error = fmt.Sprintf("verification rejected after %d attempts: %s", attempt, report.Reason)
			})
			if err := r.store.Transition(id, task.StatusFailed); err != nil {
				r.log.Error("task %s: %v", id, err)
			}
			return
		}
		r.log.Info("task %s attempt %d rejected (%s), regenerating", id, attempt, report.Reason)
		_ = r.store.Update(id, func(t *task.Task) { t.Verdict = task.VerdictRejected })
		if err := r.store.Transition(id, task.StatusRunning); err != nil {
			r.log.Error("task %s: %v", id, err)
			return
		}
	}
}

// generate performs one model invocation with knowledge context and a
// per-attempt timeout, recording whatever cost the attempt accrued.
func (r *runner) generate(ctx context.Context, desc agent.Descriptor, prompt, id string) (string, error) {
	attemptCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := r.invoker.Invoke(attemptCtx, model.Request{
		Model:  desc.Model,
		System: desc.SystemPrompt,
		Prompt: r.withKnowledgeContext(attemptCtx, prompt),
	})
	r.recordCost(id, resp.CostUSD)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// withKnowledgeContext prepends related prior results to the prompt. Query
// failures degrade to the bare prompt.
func (r *runner) withKnowledgeContext(ctx context.Context, prompt string) string {
	results, err := r.knowledge.Query(ctx, prompt, knowledgeContextSize)
	if err != nil {
		r.log.Warn("knowledge query: %v", err)
		return prompt
	}
	if len(results) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString("Relevant prior results:\n")
	for _, res := range results {
		b.WriteString("- ")
		b.WriteString(res.Record.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nTask:\n")
	b.WriteString(prompt)
	return b.String()
}

// bridgeToKnowledge stores a completed output so future tasks can retrieve
// it as context. Failures are logged; the task outcome stands.
func (r *runner) bridgeToKnowledge(ctx context.Context, id string, taskType task.Type, output string) {
	rec := knowledge.NewRecord(id, "task_results", output)
	rec.Metadata = map[string]string{"task_type": string(taskType)}
	if err := r.knowledge.Put(ctx, rec); err != nil {
		r.log.Warn("knowledge put for task %s: %v", id, err)
	}
}

// recordCost books spend into the ledger and onto the task. Cost already
// incurred is never reversed, including for cancelled tasks.
func (r *runner) recordCost(id string, amount float64) {
	if amount <= 0 {
		return
	}
	if _, err := r.ledger.RecordUsage(amount); err != nil {
		r.log.Error("ledger: %v", err)
		return
	}
	_ = r.store.Update(id, func(t *task.Task) { t.CostUSD += amount })
}

func (r *runner) fail(id, reason string) {
	_ = r.store.Update(id, func(t *task.Task) { t.Error = reason })
	if err := r.store.Transition(id, task.StatusFailed); err != nil {
		r.log.Error("task %s: %v", id, err)
	}
}

func (r *runner) cancelTask(id, reason string) {
	_ = r.store.Update(id, func(t *task.Task) { t.Error = reason })
	if err := r.store.Transition(id, task.StatusCancelled); err != nil {
		r.log.Error("task %s: %v", id, err)
	}
}

// retryableInvocation treats transient provider errors and per-attempt
// timeouts as retryable; everything else fails the task.
func retryableInvocation(err error) bool {
	if model.IsTransient(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

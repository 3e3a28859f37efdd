package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kingrea/foundry/internal/agent"
	"github.com/kingrea/foundry/internal/config"
	"github.com/kingrea/foundry/internal/knowledge"
	"github.com/kingrea/foundry/internal/ledger"
	"github.com/kingrea/foundry/internal/logbook"
	"github.com/kingrea/foundry/internal/model"
	"github.com/kingrea/foundry/internal/scheduler"
	"github.com/kingrea/foundry/internal/task"
	"github.com/kingrea/foundry/internal/verify"
)

// SubmitRequest is the validated input for a new task.
type SubmitRequest struct {
	Type   task.Type
	Prompt string
}

// CostSummary mirrors the ledger for the presentation layer.
type CostSummary struct {
	TotalUSD float64 `json:"total_usd"`
	LimitUSD float64 `json:"limit_usd"`
	Paused   bool    `json:"paused"`
}

// SystemStatus aggregates engine health for dashboards.
type SystemStatus struct {
	Counts     map[task.Status]int `json:"counts"`
	Running    int                 `json:"running"`
	Queued     int                 `json:"queued"`
	Cost       CostSummary         `json:"cost"`
	AgentTypes []task.Type         `json:"agent_types"`
}

// Orchestrator is the top-level engine API.
type Orchestrator struct {
	cfg       *config.Config
	registry  *agent.Registry
	ledger    *ledger.Ledger
	store     *Store
	sched     *scheduler.Scheduler
	knowledge knowledge.Store
	log       *logbook.Logbook
	clock     func() time.Time

	cancel  context.CancelFunc
	started bool
}

// Option customizes orchestrator construction, mainly for tests.
type Option func(*options)

type options struct {
	invoker   model.Invoker
	knowledge knowledge.Store
	log       *logbook.Logbook
	clock     func() time.Time
	sleep     func(context.Context, time.Duration) error
	backoff   time.Duration
}

// WithInvoker overrides the model provider client.
func WithInvoker(inv model.Invoker) Option {
	return func(o *options) {
		if inv != nil {
			o.invoker = inv
		}
	}
}

// WithKnowledgeStore overrides the knowledge store client.
func WithKnowledgeStore(s knowledge.Store) Option {
	return func(o *options) {
		if s != nil {
			o.knowledge = s
		}
	}
}

// WithLogbook installs the engine logbook.
func WithLogbook(l *logbook.Logbook) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRetryBackoff tunes the regeneration backoff (tests use a no-op sleep).
func WithRetryBackoff(d time.Duration, sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) {
		if d > 0 {
			o.backoff = d
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New wires the engine from configuration. The provider client and the
// knowledge store fall back to cfg-driven defaults when not overridden.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{
		clock:   time.Now,
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.invoker == nil {
		client, err := model.NewHTTPClient(cfg.Provider.BaseURL, cfg.APIKey())
		if err != nil {
			return nil, err
		}
		o.invoker = client
	}
	if o.knowledge == nil {
		if cfg.Knowledge.RemoteURL != "" {
			remote, err := knowledge.NewHTTPStore(cfg.Knowledge.RemoteURL)
			if err != nil {
				return nil, err
			}
			o.knowledge = remote
		} else {
			o.knowledge = knowledge.NewMemoryStore()
		}
	}

	registry := agent.Defaults(cfg.DefaultModel)

	ledgerOpts := []ledger.Option{
		ledger.WithRepository(ledger.NewRepository(filepath.Join(cfg.StateDir(), "ledger.json"))),
	}
	if !cfg.EnableCostTracking {
		ledgerOpts = append(ledgerOpts, ledger.WithTrackingDisabled())
	}
	led, err := ledger.New(cfg.CostLimitUSD, ledgerOpts...)
	if err != nil {
		return nil, err
	}

	store, err := NewStore(
		WithStoreRepository(NewTaskRepository(filepath.Join(cfg.StateDir(), "tasks.json"))),
		WithStoreClock(o.clock),
	)
	if err != nil {
		return nil, err
	}

	// Verification calls get their own transient-failure retries; the
	// generation path is retried by the runner so attempts stay visible on
	// the task.
	verifyInvoker, err := model.NewRetry(o.invoker, model.WithAttempts(cfg.RetryLimit))
	if err != nil {
		return nil, err
	}
	verifier, err := verify.New(verifyInvoker, cfg.VerificationModel, cfg.EnableResultVerification)
	if err != nil {
		return nil, err
	}

	run := &runner{
		store:      store,
		registry:   registry,
		invoker:    o.invoker,
		verifier:   verifier,
		ledger:     led,
		knowledge:  o.knowledge,
		log:        o.log.Scoped("worker"),
		timeout:    cfg.TaskTimeout(),
		retryLimit: cfg.RetryLimit,
		backoff:    o.backoff,
		sleep:      o.sleep,
	}
	if run.sleep == nil {
		run.sleep = defaultSleep
	}

	schedOpts := []scheduler.Option{
		scheduler.WithMaxParallel(cfg.MaxParallelTasks),
		scheduler.WithGate(led),
		scheduler.WithLogger(o.log.Scoped("scheduler")),
	}
	if cfg.QueueLimit > 0 {
		schedOpts = append(schedOpts, scheduler.WithQueueLimit(cfg.QueueLimit))
	}
	sched, err := scheduler.New(store, run, schedOpts...)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:       cfg,
		registry:  registry,
		ledger:    led,
		store:     store,
		sched:     sched,
		knowledge: o.knowledge,
		log:       o.log,
		clock:     o.clock,
	}, nil
}

// Start launches the dispatch loop, re-admits tasks recovered from disk,
// and begins the maintenance heartbeat when configured.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.started {
		return fmt.Errorf("orchestrator: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	if err := o.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}
	o.started = true
	for _, t := range o.store.List(Filter{Status: task.StatusPending}) {
		if err := o.sched.Enqueue(t.ID); err != nil {
			o.log.Error("re-admit %s: %v", t.ID, err)
		}
	}
	if interval := o.cfg.HeartbeatInterval(); interval > 0 {
		go o.heartbeat(runCtx, interval)
	}
	o.log.Info("engine started: max_parallel=%d cost_limit=%.2f", o.cfg.MaxParallelTasks, o.cfg.CostLimitUSD)
	return nil
}

// Close stops dispatch and waits for in-flight workers to wind down.
func (o *Orchestrator) Close() {
	if o.cancel != nil {
		o.cancel()
	}
	o.sched.Wait()
}

// Submit validates a work request, registers the task, and enqueues it FIFO.
func (o *Orchestrator) Submit(req SubmitRequest) (string, error) {
	if _, err := o.registry.Resolve(req.Type); err != nil {
		return "", err
	}
	t, err := task.New(req.Type, strings.TrimSpace(req.Prompt), o.clock())
	if err != nil {
		return "", err
	}
	if err := o.store.Add(t); err != nil {
		return "", err
	}
	if err := o.sched.Enqueue(t.ID); err != nil {
		// Rejected at admission (bounded queue); drop the record.
		_ = o.store.Remove(t.ID)
		return "", err
	}
	o.log.Info("submitted task %s type=%s", t.ID, t.Type)
	return t.ID, nil
}

// Cancel stops a task. Queued tasks cancel immediately; running tasks get a
// cooperative signal and keep any cost already recorded.
func (o *Orchestrator) Cancel(id string) error {
	current, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("orchestrator: task %s already %s", id, current.Status)
	}
	switch o.sched.Cancel(id) {
	case scheduler.CancelDequeued:
		_ = o.store.Update(id, func(t *task.Task) { t.Error = "cancelled before dispatch" })
		if err := o.store.Transition(id, task.StatusCancelled); err != nil {
			return err
		}
	case scheduler.CancelSignalled:
		// The worker observes the context and finalizes the task.
	case scheduler.CancelNotFound:
		// Not yet enqueued (or already finalized between checks); cancel
		// directly if the lifecycle still allows it.
		if err := o.store.Transition(id, task.StatusCancelled); err != nil {
			return err
		}
	}
	o.log.Info("cancel requested for task %s", id)
	return nil
}

// Status returns a copy of the task record.
func (o *Orchestrator) Status(id string) (task.Task, error) {
	return o.store.Get(id)
}

// List returns matching tasks ordered by creation time.
func (o *Orchestrator) List(f Filter) []task.Task {
	return o.store.List(f)
}

// ConfirmCostContinue acknowledges a cost pause and resumes admission in
// the original queue order. Idempotent.
func (o *Orchestrator) ConfirmCostContinue() {
	o.ledger.ConfirmContinue()
	o.sched.Wake()
	o.log.Info("cost pause confirmed, admission resumed")
}

// Costs reports the ledger state.
func (o *Orchestrator) Costs() CostSummary {
	return CostSummary{
		TotalUSD: o.ledger.Total(),
		LimitUSD: o.ledger.Limit(),
		Paused:   o.ledger.Paused(),
	}
}

// Agents lists the registered agent descriptors.
func (o *Orchestrator) Agents() []agent.Descriptor {
	return o.registry.Descriptors()
}

// System reports engine-wide status for dashboards.
func (o *Orchestrator) System() SystemStatus {
	return SystemStatus{
		Counts:     o.store.Counts(),
		Running:    o.sched.RunningCount(),
		Queued:     o.sched.QueueDepth(),
		Cost:       o.Costs(),
		AgentTypes: o.registry.Types(),
	}
}

// heartbeat submits a maintenance task on a fixed period. The beat goes
// through the normal queue and state machine like any other task.
func (o *Orchestrator) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, err := o.Submit(SubmitRequest{
				Type:   agent.TypeMaintenance,
				Prompt: "Health check: confirm the model provider responds.",
			})
			if err != nil {
				o.log.Warn("heartbeat submit: %v", err)
				continue
			}
			o.log.Info("heartbeat task %s submitted", id)
		}
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kingrea/foundry/internal/task"
)

// DefaultMaxParallel bounds concurrent workers when no cap is configured.
const DefaultMaxParallel = 3

// ErrQueueFull is returned by Enqueue when a bounded queue is at capacity.
var ErrQueueFull = errors.New("scheduler: queue full")

// Executor runs one task to a terminal or awaiting state. The context is
// cancelled when the task is cancelled or the engine shuts down.
type Executor interface {
	Execute(ctx context.Context, id string)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, id string)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, id string) { f(ctx, id) }

// Tasks is the slice of the task store the scheduler needs: validated
// lifecycle transitions keyed by id.
type Tasks interface {
	Transition(id string, to task.Status) error
}

// Gate blocks admission while the cost ledger awaits confirmation.
type Gate interface {
	Paused() bool
}

// Logger receives dispatch diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// CancelOutcome describes what Cancel did with a task id.
type CancelOutcome int

const (
	// CancelNotFound means the id was neither queued nor running.
	CancelNotFound CancelOutcome = iota
	// CancelDequeued means the task was removed from the queue before
	// dispatch; the caller finalizes its state.
	CancelDequeued
	// CancelSignalled means the running worker's context was cancelled;
	// the worker finalizes the task cooperatively.
	CancelSignalled
)

// Scheduler is the admission controller and dispatch loop.
type Scheduler struct {
	tasks       Tasks
	exec        Executor
	gate        Gate
	log         Logger
	maxParallel int
	queueLimit  int

	mu      sync.Mutex
	queue   []string
	running map[string]context.CancelFunc
	started bool

	wake chan struct{}
	wg   sync.WaitGroup
}

// Option customizes the scheduler.
type Option func(*Scheduler)

// WithMaxParallel caps concurrent workers. Values <= 0 keep the default.
func WithMaxParallel(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithQueueLimit bounds queue depth. Zero (the default) means unbounded.
func WithQueueLimit(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueLimit = n
		}
	}
}

// WithGate installs the admission gate.
func WithGate(g Gate) Option {
	return func(s *Scheduler) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithLogger installs a diagnostics logger.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a scheduler over the given task store and executor.
func New(tasks Tasks, exec Executor, opts ...Option) (*Scheduler, error) {
	if tasks == nil {
		return nil, fmt.Errorf("scheduler: task store is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("scheduler: executor is required")
	}
	s := &Scheduler{
		tasks:       tasks,
		exec:        exec,
		log:         nopLogger{},
		maxParallel: DefaultMaxParallel,
		running:     map[string]context.CancelFunc{},
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start launches the dispatch loop. It returns immediately; the loop exits
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already started")
	}
	s.started = true
	s.mu.Unlock()
	s.wg.Add(1)
	go s.loop(ctx)
	s.Wake()
	return nil
}

// Wait blocks until the dispatch loop and all workers have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Enqueue admits a pending task id FIFO. The task moves to queued. The
// transition happens under the scheduler lock so dispatch can never observe
// an id whose status lags behind the queue.
func (s *Scheduler) Enqueue(id string) error {
	s.mu.Lock()
	if s.queueLimit > 0 && len(s.queue) >= s.queueLimit {
		s.mu.Unlock()
		return ErrQueueFull
	}
	if err := s.tasks.Transition(id, task.StatusQueued); err != nil {
		s.mu.Unlock()
		return err
	}
	s.queue = append(s.queue, id)
	s.mu.Unlock()
	s.Wake()
	return nil
}

// Cancel removes a queued task or signals a running one.
func (s *Scheduler) Cancel(id string) CancelOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return CancelDequeued
		}
	}
	if cancel, ok := s.running[id]; ok {
		cancel()
		return CancelSignalled
	}
	return CancelNotFound
}

// Wake nudges the dispatch loop to re-evaluate admission. Called after a
// cost confirmation lifts the gate.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// RunningCount reports how many workers hold slots.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// QueueDepth reports how many tasks await dispatch.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		s.dispatch(ctx)
	}
}

// dispatch pulls from the queue while a slot is free and the gate is open.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		if len(s.queue) == 0 || len(s.running) >= s.maxParallel {
			s.mu.Unlock()
			return
		}
		if s.gate != nil && s.gate.Paused() {
			s.mu.Unlock()
			s.log.Printf("dispatch held: cost ledger awaits confirmation")
			return
		}
		id := s.queue[0]
		s.queue = s.queue[1:]
		if err := s.tasks.Transition(id, task.StatusRunning); err != nil {
			// The task left the queued state behind our back (for example a
			// cancellation racing dispatch). Move on without taking a slot.
			s.mu.Unlock()
			s.log.Printf("dispatch skipped %s: %v", id, err)
			continue
		}
		workerCtx, cancel := context.WithCancel(ctx)
		s.running[id] = cancel
		s.wg.Add(1)
		s.mu.Unlock()

		go func(id string, workerCtx context.Context) {
			defer s.wg.Done()
			defer s.release(id)
			s.exec.Execute(workerCtx, id)
		}(id, workerCtx)
	}
}

// release frees the slot after a worker returns and re-evaluates admission.
func (s *Scheduler) release(id string) {
	s.releaseSlot(id)
	s.Wake()
}

func (s *Scheduler) releaseSlot(id string) {
	s.mu.Lock()
	cancel, ok := s.running[id]
	delete(s.running, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

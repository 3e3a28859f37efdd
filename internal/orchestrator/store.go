package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kingrea/foundry/internal/task"
)

// ErrTaskNotFound is returned for operations on unknown task ids.
var ErrTaskNotFound = errors.New("orchestrator: task not found")

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status task.Status
	Type   task.Type
}

// Store owns all task records. Every read copies and every mutation runs
// under one mutex, so a task's transitions are strictly sequential.
type Store struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
	repo  *TaskRepository
	clock func() time.Time
}

// StoreOption customizes the store.
type StoreOption func(*Store)

// WithStoreRepository attaches durable task storage.
func WithStoreRepository(repo *TaskRepository) StoreOption {
	return func(s *Store) {
		s.repo = repo
	}
}

// WithStoreClock injects a deterministic clock for tests.
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates a store, restoring persisted tasks when a repository is
// attached. Restored non-terminal tasks are reset to pending so the engine
// can re-admit them after a restart.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		tasks: map[string]*task.Task{},
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.repo != nil {
		restored, err := s.repo.Load()
		if err != nil {
			return nil, err
		}
		for i := range restored {
			t := restored[i]
			if !t.Status.Terminal() {
				t.Status = task.StatusPending
				t.Progress = task.ProgressQueued
			}
			s.tasks[t.ID] = &t
		}
	}
	return s, nil
}

// Add registers a new task. A duplicate id is an invariant violation.
func (s *Store) Add(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("orchestrator: duplicate task id %s", t.ID)
	}
	s.tasks[t.ID] = t
	s.persistLocked()
	return nil
}

// Remove deletes a task record (used when admission is rejected after the
// record was created, and by retention policies).
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(s.tasks, id)
	s.persistLocked()
	return nil
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// Transition moves a task along a lifecycle edge. Implements the
// scheduler's task contract.
func (s *Store) Transition(id string, to task.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := t.Transition(to, s.clock()); err != nil {
		return err
	}
	s.persistLocked()
	return nil
}

// Update applies fn to the task under the store lock. Status changes must
// go through Transition, not Update.
func (s *Store) Update(id string, fn func(*task.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	fn(t)
	t.UpdatedAt = s.clock()
	s.persistLocked()
	return nil
}

// List returns copies of matching tasks ordered by creation time.
func (s *Store) List(f Filter) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts tallies tasks per status.
func (s *Store) Counts() map[task.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[task.Status]int{}
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts
}

func (s *Store) persistLocked() {
	if s.repo == nil {
		return
	}
	all := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		all = append(all, t.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	// Task records stay authoritative in memory; a failed write is retried
	// on the next mutation.
	_ = s.repo.Save(all)
}

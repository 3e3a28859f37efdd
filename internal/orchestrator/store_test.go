package orchestrator

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingrea/foundry/internal/agent"
	"github.com/kingrea/foundry/internal/task"
)

func mustTask(t *testing.T, taskType task.Type, prompt string, at time.Time) *task.Task {
	t.Helper()
	created, err := task.New(taskType, prompt, at)
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	return created
}

func TestStoreAddGetAndDuplicates(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	now := time.Now()
	created := mustTask(t, agent.TypeCoding, "p", now)
	if err := s.Add(created); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(created); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Get hands out copies; mutating one must not leak into the store.
	got.Prompt = "mutated"
	again, _ := s.Get(created.ID)
	if again.Prompt != "p" {
		t.Fatalf("store record mutated through a copy: %q", again.Prompt)
	}
	if _, err := s.Get("nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestStoreTransitionEnforcesLifecycle(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	created := mustTask(t, agent.TypeCoding, "p", time.Now())
	if err := s.Add(created); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Transition(created.ID, task.StatusRunning); !errors.Is(err, task.ErrIllegalTransition) {
		t.Fatalf("pending->running should be illegal, got %v", err)
	}
	for _, to := range []task.Status{task.StatusQueued, task.StatusRunning, task.StatusAwaitingVerification, task.StatusCompleted} {
		if err := s.Transition(created.ID, to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if err := s.Transition(created.ID, task.StatusCancelled); !errors.Is(err, task.ErrIllegalTransition) {
		t.Fatalf("terminal task accepted a transition: %v", err)
	}
}

func TestStoreListFiltersAndOrders(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := mustTask(t, agent.TypeCoding, "a", base.Add(2*time.Second))
	b := mustTask(t, agent.TypeDesign, "b", base)
	c := mustTask(t, agent.TypeCoding, "c", base.Add(time.Second))
	for _, created := range []*task.Task{a, b, c} {
		if err := s.Add(created); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	all := s.List(Filter{})
	if len(all) != 3 || all[0].Prompt != "b" || all[1].Prompt != "c" || all[2].Prompt != "a" {
		t.Fatalf("unexpected order: %v", all)
	}
	coding := s.List(Filter{Type: agent.TypeCoding})
	if len(coding) != 2 {
		t.Fatalf("type filter returned %d, want 2", len(coding))
	}
	if err := s.Transition(a.ID, task.StatusQueued); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	queued := s.List(Filter{Status: task.StatusQueued})
	if len(queued) != 1 || queued[0].ID != a.ID {
		t.Fatalf("status filter returned %v", queued)
	}
	counts := s.Counts()
	if counts[task.StatusPending] != 2 || counts[task.StatusQueued] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestStoreRestartResetsNonTerminalTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	repo := NewTaskRepository(path)
	s, err := NewStore(WithStoreRepository(repo))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	now := time.Now()
	running := mustTask(t, agent.TypeCoding, "in flight", now)
	done := mustTask(t, agent.TypeDesign, "finished", now.Add(time.Second))
	for _, created := range []*task.Task{running, done} {
		if err := s.Add(created); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	for _, to := range []task.Status{task.StatusQueued, task.StatusRunning} {
		if err := s.Transition(running.ID, to); err != nil {
			t.Fatalf("Transition: %v", err)
		}
	}
	for _, to := range []task.Status{task.StatusQueued, task.StatusRunning, task.StatusAwaitingVerification, task.StatusCompleted} {
		if err := s.Transition(done.ID, to); err != nil {
			t.Fatalf("Transition: %v", err)
		}
	}

	restored, err := NewStore(WithStoreRepository(NewTaskRepository(path)))
	if err != nil {
		t.Fatalf("NewStore after restart: %v", err)
	}
	got, err := restored.Get(running.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusPending {
		t.Fatalf("restored in-flight task = %s, want pending", got.Status)
	}
	if got.Progress != task.ProgressQueued {
		t.Fatalf("restored progress = %d, want %d", got.Progress, task.ProgressQueued)
	}
	finished, err := restored.Get(done.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if finished.Status != task.StatusCompleted {
		t.Fatalf("completed task lost its status: %s", finished.Status)
	}
}

func TestTaskRepositoryMissingFile(t *testing.T) {
	repo := NewTaskRepository(filepath.Join(t.TempDir(), "absent.json"))
	tasks, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
}

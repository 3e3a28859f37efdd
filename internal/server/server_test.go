package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kingrea/foundry/internal/agent"
	"github.com/kingrea/foundry/internal/config"
	"github.com/kingrea/foundry/internal/orchestrator"
	"github.com/kingrea/foundry/internal/task"
)

// stubEngine records calls and serves canned task records.
type stubEngine struct {
	tasks     map[string]task.Task
	submitErr error
	cancelled []string
	confirmed bool
	costs     orchestrator.CostSummary
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		tasks: map[string]task.Task{},
		costs: orchestrator.CostSummary{TotalUSD: 1.25, LimitUSD: 5, Paused: true},
	}
}

func (e *stubEngine) Submit(req orchestrator.SubmitRequest) (string, error) {
	if e.submitErr != nil {
		return "", e.submitErr
	}
	id := fmt.Sprintf("task-%d", len(e.tasks)+1)
	e.tasks[id] = task.Task{ID: id, Type: req.Type, Prompt: req.Prompt, Status: task.StatusQueued}
	return id, nil
}

func (e *stubEngine) Cancel(id string) error {
	if _, ok := e.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", orchestrator.ErrTaskNotFound, id)
	}
	e.cancelled = append(e.cancelled, id)
	return nil
}

func (e *stubEngine) Status(id string) (task.Task, error) {
	t, ok := e.tasks[id]
	if !ok {
		return task.Task{}, fmt.Errorf("%w: %s", orchestrator.ErrTaskNotFound, id)
	}
	return t, nil
}

func (e *stubEngine) List(f orchestrator.Filter) []task.Task {
	out := []task.Task{}
	for _, t := range e.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (e *stubEngine) ConfirmCostContinue() {
	e.confirmed = true
	e.costs.Paused = false
}

func (e *stubEngine) Costs() orchestrator.CostSummary { return e.costs }

func (e *stubEngine) Agents() []agent.Descriptor {
	return []agent.Descriptor{{
		Type:         agent.TypeCoding,
		Name:         "coding-agent",
		Model:        "gpt-4o-mini",
		Capabilities: []agent.Capability{"code_generation"},
	}}
}

func (e *stubEngine) System() orchestrator.SystemStatus {
	return orchestrator.SystemStatus{Running: 1, Queued: 2, Cost: e.costs}
}

func testSettings() Settings {
	return Settings{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         0,
		MaxBodyBytes: 1024,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
	}
}

func startServer(t *testing.T, engine Engine) (*Server, string) {
	t.Helper()
	srv, err := New(testSettings(), engine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	return srv, srv.BaseURL()
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("FOUNDRY_SERVER_PORT", "9001")
	t.Setenv("FOUNDRY_SERVER_HOST", "0.0.0.0")
	t.Setenv("FOUNDRY_SERVER_ENABLED", "false")
	cfg := config.Default()
	settings := SettingsFromConfig(&cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from env override")
	}
}

func TestStartRefusesWhenDisabled(t *testing.T) {
	settings := testSettings()
	settings.Enabled = false
	srv, err := New(settings, newStubEngine())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("expected error for disabled server")
	}
}

func TestSubmitAndFetchTask(t *testing.T) {
	t.Parallel()
	engine := newStubEngine()
	_, base := startServer(t, engine)

	body, _ := json.Marshal(map[string]string{"type": "coding", "prompt": "write a cli"})
	resp, err := http.Post(base+"/api/v1/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post task: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created task.Task
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Status != task.StatusQueued {
		t.Fatalf("unexpected task: %+v", created)
	}

	resp, err = http.Get(base + "/api/v1/tasks/" + created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var fetched task.Task
	decodeBody(t, resp, &fetched)
	if fetched.Prompt != "write a cli" {
		t.Fatalf("prompt = %q", fetched.Prompt)
	}

	resp, err = http.Get(base + "/api/v1/tasks")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	var listed listResponse
	decodeBody(t, resp, &listed)
	if listed.Count != 1 {
		t.Fatalf("count = %d, want 1", listed.Count)
	}
}

func TestSubmitRejectsUnknownTypeAndBadJSON(t *testing.T) {
	t.Parallel()
	engine := newStubEngine()
	engine.submitErr = fmt.Errorf("agent: juggling: %w", agent.ErrNotFound)
	_, base := startServer(t, engine)

	body, _ := json.Marshal(map[string]string{"type": "juggling", "prompt": "p"})
	resp, err := http.Post(base+"/api/v1/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.StatusCode)
	}

	resp, err = http.Post(base+"/api/v1/tasks", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", resp.StatusCode)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	_, base := startServer(t, newStubEngine())
	resp, err := http.Get(base + "/api/v1/tasks?status=sleeping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCancelEndpoints(t *testing.T) {
	t.Parallel()
	engine := newStubEngine()
	engine.tasks["task-1"] = task.Task{ID: "task-1", Status: task.StatusQueued}
	_, base := startServer(t, engine)

	resp, err := http.Post(base+"/api/v1/tasks/task-1/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(engine.cancelled) != 1 || engine.cancelled[0] != "task-1" {
		t.Fatalf("cancelled = %v", engine.cancelled)
	}

	resp, err = http.Post(base+"/api/v1/tasks/missing/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCostEndpoints(t *testing.T) {
	t.Parallel()
	engine := newStubEngine()
	_, base := startServer(t, engine)

	resp, err := http.Get(base + "/api/v1/costs")
	if err != nil {
		t.Fatalf("get costs: %v", err)
	}
	var costs orchestrator.CostSummary
	decodeBody(t, resp, &costs)
	if costs.TotalUSD != 1.25 || !costs.Paused {
		t.Fatalf("costs = %+v", costs)
	}

	resp, err = http.Post(base+"/api/v1/costs/confirm", "application/json", nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	decodeBody(t, resp, &costs)
	if !engine.confirmed || costs.Paused {
		t.Fatalf("confirm not applied: engine=%v costs=%+v", engine.confirmed, costs)
	}
}

func TestAgentsAndHealthEndpoints(t *testing.T) {
	t.Parallel()
	_, base := startServer(t, newStubEngine())

	resp, err := http.Get(base + "/api/v1/agents")
	if err != nil {
		t.Fatalf("get agents: %v", err)
	}
	var agents agentsResponse
	decodeBody(t, resp, &agents)
	if len(agents.Agents) != 1 || agents.Agents[0].Type != "coding" {
		t.Fatalf("agents = %+v", agents)
	}

	resp, err = http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Status != string(StatusReady) {
		t.Fatalf("health status = %s", health.Status)
	}
	if health.System.Queued != 2 {
		t.Fatalf("system queued = %d", health.System.Queued)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	_, base := startServer(t, newStubEngine())
	req, _ := http.NewRequest(http.MethodDelete, base+"/api/v1/tasks", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

package orchestrator

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kingrea/foundry/internal/task"
)

// TaskRepository persists task records keyed by id as a JSON file under the
// state directory so the queue survives process restarts.
type TaskRepository struct {
	path string
}

// NewTaskRepository creates a repository backed by the given file path.
func NewTaskRepository(path string) *TaskRepository {
	return &TaskRepository{path: path}
}

// Load reads the persisted task records. A missing file yields no tasks.
func (r *TaskRepository) Load() ([]task.Task, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var tasks []task.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Save writes all task records to disk.
func (r *TaskRepository) Save(tasks []task.Task) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, append(encoded, '\n'), 0o644)
}

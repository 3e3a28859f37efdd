package ledger

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Snapshot is the durable form of the ledger.
type Snapshot struct {
	TotalUSD float64 `json:"total_usd"`
	Paused   bool    `json:"paused"`
}

// Repository stores the ledger snapshot as JSON on disk so accounting
// survives process restarts.
type Repository struct {
	path string
}

// NewRepository creates a repository backed by the given file path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Load reads the persisted snapshot. A missing file yields a zero snapshot.
func (r *Repository) Load() (Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// Save writes the snapshot to disk.
func (r *Repository) Save(snapshot Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, append(encoded, '\n'), 0o644)
}

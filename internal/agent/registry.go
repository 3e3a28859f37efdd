package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/foundry/internal/task"
)

// ErrNotFound reports a resolve for an unregistered task type.
var ErrNotFound = errors.New("agent: type not registered")

// Capability names one operation a descriptor can perform.
type Capability string

// Descriptor binds a task type to the model and prompt that serve it.
type Descriptor struct {
	Type         task.Type
	Name         string
	Model        string
	SystemPrompt string
	Capabilities []Capability
}

// Validate ensures the descriptor is well-formed.
func (d Descriptor) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("agent: descriptor type is required")
	}
	if d.Name == "" {
		return fmt.Errorf("agent: name is required for %s", d.Type)
	}
	if d.Model == "" {
		return fmt.Errorf("agent: model is required for %s", d.Type)
	}
	return nil
}

// Registry maintains the known agent descriptors.
type Registry struct {
	mu     sync.RWMutex
	byType map[task.Type]Descriptor
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: map[task.Type]Descriptor{}}
}

// Register installs a descriptor. Registering a duplicate type or writing
// to a sealed registry is an error.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("agent: registry is sealed, cannot register %s", d.Type)
	}
	if _, exists := r.byType[d.Type]; exists {
		return fmt.Errorf("agent: %s already registered", d.Type)
	}
	r.byType[d.Type] = d
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Seal freezes the registry. Called once startup registration is done.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Resolve returns the descriptor for a task type. An unknown type fails
// fast; there is no fallback descriptor.
func (r *Registry) Resolve(taskType task.Type) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byType[taskType]
	if !ok {
		return Descriptor{}, fmt.Errorf("agent: %s: %w", taskType, ErrNotFound)
	}
	return d, nil
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []task.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]task.Type, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Descriptors returns all registered descriptors ordered by type.
func (r *Registry) Descriptors() []Descriptor {
	types := r.Types()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(types))
	for _, t := range types {
		out = append(out, r.byType[t])
	}
	return out
}

package incident

import (
	"context"
	"fmt"
	"sync"
)

// Executor is the interface all auto-action implementations satisfy.
type Executor interface {
	// Type returns the string key this executor is registered under.
	Type() string
	// Execute runs the action against a freshly created incident and
	// returns a human-readable outcome message.
	Execute(ctx context.Context, inc *Incident, params map[string]interface{}) (string, error)
}

// ActionRegistry maps action type strings to their executors.
// Safe for concurrent reads; Register should only be called at startup.
type ActionRegistry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewActionRegistry creates an empty ActionRegistry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{executors: make(map[string]Executor)}
}

// Register adds an executor. Panics on duplicate type to surface
// misconfiguration early.
func (r *ActionRegistry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[e.Type()]; exists {
		panic(fmt.Sprintf("action registry: duplicate type %q", e.Type()))
	}
	r.executors[e.Type()] = e
}

// Get returns the executor for the given type.
func (r *ActionRegistry) Get(actionType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[actionType]
	if !ok {
		return nil, fmt.Errorf("no executor registered for action type %q", actionType)
	}
	return e, nil
}

// Types returns all registered action type strings.
func (r *ActionRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for k := range r.executors {
		out = append(out, k)
	}
	return out
}

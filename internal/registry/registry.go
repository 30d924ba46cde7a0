// Package registry is the process-wide directory of live entity actors.
// It owns the only check-then-act hazard in the system: get-or-create is
// atomic because the actor is started and registered while the registry
// mutex is held, and actor self-removal serializes behind the same mutex.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
)

// Factory builds the behavior and idle timeout for a new actor key.
type Factory func(key actor.Key) (actor.Behavior, time.Duration)

// Entry pairs an actor key with its queried state snapshot.
type Entry struct {
	Key      actor.Key   `json:"key"`
	Snapshot interface{} `json:"snapshot"`
}

// Registry maps entity keys to running actors.
type Registry struct {
	mu      sync.Mutex
	actors  map[actor.Key]*actor.Actor
	factory Factory
}

// New creates an empty Registry. One long-lived instance is constructed at
// startup and passed to the router and incident manager — never a package
// singleton.
func New(factory Factory) *Registry {
	return &Registry{
		actors:  make(map[actor.Key]*actor.Actor),
		factory: factory,
	}
}

// GetOrCreate returns the running actor for key, starting exactly one new
// actor if none exists. Safe under concurrent callers for the same key:
// creation happens entirely inside the mutex, so N racing callers get N
// identical handles.
func (r *Registry) GetOrCreate(key actor.Key) *actor.Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[key]; ok {
		return a
	}
	b, idle := r.factory(key)
	a := actor.Start(key, b, idle, func(stopped *actor.Actor) {
		r.remove(key, stopped)
	})
	r.actors[key] = a
	return a
}

// Get returns the running actor for key without creating one.
func (r *Registry) Get(key actor.Key) (*actor.Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[key]
	return a, ok
}

// remove drops key only if it still maps to the stopped actor, so a fresh
// successor registered after eviction is never clobbered.
func (r *Registry) remove(key actor.Key, stopped *actor.Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.actors[key]; ok && cur == stopped {
		delete(r.actors, key)
	}
}

// ListAll snapshots every live actor of the given kind. An actor that fails
// to answer (mid-shutdown) is silently excluded rather than failing the
// whole listing.
func (r *Registry) ListAll(kind actor.Kind) []Entry {
	r.mu.Lock()
	handles := make([]*actor.Actor, 0, len(r.actors))
	for k, a := range r.actors {
		if k.Kind == kind {
			handles = append(handles, a)
		}
	}
	r.mu.Unlock()

	// Query outside the lock: snapshots are request/response messages with
	// their own timeout and must not serialize registry access.
	out := make([]Entry, 0, len(handles))
	for _, a := range handles {
		snap, ok := a.Query()
		if !ok {
			continue
		}
		out = append(out, Entry{Key: a.Key(), Snapshot: snap})
	}
	return out
}

// Len reports the number of live actors across all kinds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Shutdown stops every actor and waits up to timeout for them to exit.
// Actors that miss the deadline are abandoned; their goroutines exit on
// their own idle timers.
func (r *Registry) Shutdown(timeout time.Duration) {
	r.mu.Lock()
	handles := make([]*actor.Actor, 0, len(r.actors))
	for _, a := range r.actors {
		handles = append(handles, a)
	}
	r.mu.Unlock()

	for _, a := range handles {
		a.Stop()
	}
	deadline := time.After(timeout)
	for _, a := range handles {
		select {
		case <-a.Done():
		case <-deadline:
			slog.Warn("registry shutdown timed out waiting for actors")
			return
		}
	}
}

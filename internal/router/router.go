// Package router dispatches canonical events to entity actors, persists
// every raw event and derives scenario events for the external detection
// layer. Actor state mutation and persistence are deliberately decoupled:
// either can fail without affecting the other.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
	"github.com/gyaneshwarpardhi/gatewatch/internal/bus"
	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
	"github.com/gyaneshwarpardhi/gatewatch/internal/metrics"
	"github.com/gyaneshwarpardhi/gatewatch/internal/registry"
	"github.com/gyaneshwarpardhi/gatewatch/internal/wire"
)

// EventWriter is the slice of the store the router needs.
type EventWriter interface {
	InsertEvent(ctx context.Context, ev *event.Event) error
}

// Config sizes the persistence pool.
type Config struct {
	PersistWorkers int
	QueueDepth     int
}

// Router owns event dispatch. One instance is constructed at startup and
// shared by every ingestion path.
type Router struct {
	reg     *registry.Registry
	bus     bus.Publisher
	persist *workerPool[*event.Event]
}

// New creates a Router and starts its persistence pool.
func New(ctx context.Context, reg *registry.Registry, store EventWriter, pub bus.Publisher, conf Config) *Router {
	r := &Router{reg: reg, bus: pub}
	r.persist = newWorkerPool(ctx, conf.PersistWorkers, conf.QueueDepth, func(ctx context.Context, ev *event.Event) {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.InsertEvent(wctx, ev); err != nil {
			// Persistence failures never surface to the producer.
			metrics.PersistFailures.WithLabelValues("event").Inc()
			slog.Warn("event persistence failed", "type", ev.Type, "site", ev.Site, "err", err)
		}
	})
	return r
}

// Ingest normalizes one raw payload and routes the result. This is the
// single entry point for both wire shapes.
func (r *Router) Ingest(topic string, payload map[string]interface{}) *event.Event {
	ev := wire.Normalize(topic, payload)
	metrics.EventsReceived.WithLabelValues(topic, ev.Type, ev.Site).Inc()

	r.Route(ev)

	// Scenario mapping is independent of actor routing: derived from the
	// raw payload, not from the canonical event the actors see.
	if sc, ok := wire.ToScenarioEvent(topic, payload); ok {
		r.bus.Publish(bus.ChannelScenario, sc)
	}
	return ev
}

// Route persists ev unconditionally and delivers it to the actors its
// identifiers select. Events with neither person nor gate id are persisted
// only.
func (r *Router) Route(ev *event.Event) {
	if !r.persist.Submit(ev) {
		metrics.EventsDropped.Inc()
		slog.Warn("persistence queue full, event write dropped", "type", ev.Type, "site", ev.Site)
	}
	r.bus.Publish(bus.ChannelLiveEvents, ev)

	if ev.PersonID != "" {
		r.deliver(actor.Key{Kind: actor.KindPerson, Site: ev.Site, ID: ev.PersonID}, ev)
	}
	if ev.GateID != "" {
		r.deliver(actor.Key{Kind: actor.KindGate, Site: ev.Site, ID: ev.GateID}, ev)
	}
	if strings.HasPrefix(ev.Type, "acc.") || wire.MatchedAliases[ev.Type] {
		if terminal := wire.AccTerminalKey(ev); terminal != "" {
			r.deliver(actor.Key{Kind: actor.KindAcc, Site: ev.Site, ID: terminal}, ev)
		}
	}
}

// deliver sends ev to the actor for key, creating it if absent. A send can
// lose the race with idle eviction; one retry against a fresh actor covers
// that window, so no event is dropped at the eviction boundary.
func (r *Router) deliver(key actor.Key, ev *event.Event) {
	if r.reg.GetOrCreate(key).Send(ev) {
		return
	}
	if !r.reg.GetOrCreate(key).Send(ev) {
		slog.Warn("event dropped: actor unavailable", "key", key.String(), "type", ev.Type)
	}
}

// QueueUtilization returns persistence queue used / capacity (0-1).
func (r *Router) QueueUtilization() float64 {
	if r.persist.QueueCap() == 0 {
		return 0
	}
	return float64(r.persist.QueueLen()) / float64(r.persist.QueueCap())
}

// Shutdown drains the persistence pool.
func (r *Router) Shutdown() {
	r.persist.Drain()
}

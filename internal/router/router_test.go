package router_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
	"github.com/gyaneshwarpardhi/gatewatch/internal/bus"
	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
	"github.com/gyaneshwarpardhi/gatewatch/internal/incident"
	"github.com/gyaneshwarpardhi/gatewatch/internal/registry"
	"github.com/gyaneshwarpardhi/gatewatch/internal/router"
	"github.com/gyaneshwarpardhi/gatewatch/internal/wire"
)

type memWriter struct {
	mu     sync.Mutex
	events []*event.Event
	err    error
}

func (w *memWriter) InsertEvent(_ context.Context, ev *event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.events = append(w.events, ev)
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

type nopJourneys struct{}

func (nopJourneys) WriteJourney(context.Context, *actor.Journey) error { return nil }

type nopReporter struct{}

func (nopReporter) Report(incident.Candidate) {}

func testFactory(idle time.Duration) registry.Factory {
	return func(key actor.Key) (actor.Behavior, time.Duration) {
		switch key.Kind {
		case actor.KindGate:
			return actor.NewGate(key, nopReporter{}, time.Hour), idle
		case actor.KindAcc:
			return actor.NewAcc(key), idle
		default:
			return actor.NewPerson(key, nopJourneys{}), idle
		}
	}
}

func newTestRouter(t *testing.T, store router.EventWriter, idle time.Duration) (*router.Router, *registry.Registry, *bus.Memory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := registry.New(testFactory(idle))
	b := bus.NewMemory()
	rt := router.New(ctx, reg, store, b, router.Config{PersistWorkers: 2, QueueDepth: 100})
	return rt, reg, b
}

// snapshot queries one actor's state; the query message serializes behind
// pending sends, so one query observes everything routed before it.
func snapshot(t *testing.T, reg *registry.Registry, key actor.Key) interface{} {
	t.Helper()
	a, ok := reg.Get(key)
	if !ok {
		t.Fatalf("no actor for %s", key)
	}
	snap, ok := a.Query()
	if !ok {
		t.Fatalf("actor %s did not answer", key)
	}
	return snap
}

func TestRouteFansOutToPersonAndGate(t *testing.T) {
	store := &memWriter{}
	rt, reg, _ := newTestRouter(t, store, time.Hour)

	rt.Route(&event.Event{
		Type: event.TypeGateZoneEntry, Time: time.Now(),
		Site: "site-a", PersonID: "42", GateID: "5",
	})

	ps := snapshot(t, reg, actor.Key{Kind: actor.KindPerson, Site: "site-a", ID: "42"}).(*actor.PersonSnapshot)
	if len(ps.History) != 1 {
		t.Errorf("person history = %d, want 1", len(ps.History))
	}
	gs := snapshot(t, reg, actor.Key{Kind: actor.KindGate, Site: "site-a", ID: "5"}).(*actor.GateSnapshot)
	if len(gs.PersonsInZone) != 1 || gs.PersonsInZone[0] != "42" {
		t.Errorf("gate occupants = %v, want [42]", gs.PersonsInZone)
	}
}

func TestRouteGateOnly(t *testing.T) {
	rt, reg, _ := newTestRouter(t, &memWriter{}, time.Hour)

	rt.Route(&event.Event{Type: event.TypeGateOpened, Time: time.Now(), Site: "site-a", GateID: "5"})

	if _, ok := reg.Get(actor.Key{Kind: actor.KindGate, Site: "site-a", ID: "5"}); !ok {
		t.Fatal("gate actor missing")
	}
	if reg.Len() != 1 {
		t.Errorf("registry holds %d actors, want 1 (no person actor for a gate-only event)", reg.Len())
	}
}

func TestRouteWithoutIdentifiersPersistsOnly(t *testing.T) {
	store := &memWriter{}
	rt, reg, _ := newTestRouter(t, store, time.Hour)

	rt.Route(&event.Event{Type: "site.heartbeat", Time: time.Now(), Site: "site-a"})

	deadline := time.After(2 * time.Second)
	for store.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("event was never persisted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if reg.Len() != 0 {
		t.Errorf("registry holds %d actors, want 0", reg.Len())
	}
}

func TestRoutePersistenceFailureDoesNotBlockActors(t *testing.T) {
	store := &memWriter{err: errors.New("store down")}
	rt, reg, _ := newTestRouter(t, store, time.Hour)

	rt.Route(&event.Event{Type: event.TypeZoneEntry, Time: time.Now(), Site: "site-a", PersonID: "42", Zone: "A"})

	ps := snapshot(t, reg, actor.Key{Kind: actor.KindPerson, Site: "site-a", ID: "42"}).(*actor.PersonSnapshot)
	if ps.CurrentZone != "A" {
		t.Errorf("actor state not updated despite persistence failure: zone = %q", ps.CurrentZone)
	}
}

func TestRouteAccEvents(t *testing.T) {
	rt, reg, _ := newTestRouter(t, &memWriter{}, time.Hour)

	rt.Route(&event.Event{
		Type: event.TypeAccMatched, Time: time.Now(), Site: "site-a",
		Raw: map[string]interface{}{"pos_zone": "POS_1"},
	})
	rt.Route(&event.Event{
		Type: event.TypeAccReceived, Time: time.Now(), Site: "site-a",
		Raw: map[string]interface{}{"pos_zone": "POS_1"},
	})

	as := snapshot(t, reg, actor.Key{Kind: actor.KindAcc, Site: "site-a", ID: "POS_1"}).(*actor.AccSnapshot)
	if as.Received != 1 || as.Matched != 1 {
		t.Errorf("acc counters = %d/%d, want 1/1", as.Received, as.Matched)
	}
}

func TestIngestNormalizesAndPublishesScenario(t *testing.T) {
	rt, reg, b := newTestRouter(t, &memWriter{}, time.Hour)
	scenarios := b.Subscribe(bus.ChannelScenario, 8)

	ev := rt.Ingest("gw/site-a/acc", map[string]interface{}{
		"ts":          float64(time.Now().UnixMilli()),
		"t":           "matched",
		"site":        "site-a",
		"matched_tid": float64(42),
		"pos_zone":    "POS_1",
	})
	if ev.Type != event.TypeAccMatched {
		t.Fatalf("Ingest normalized to %q", ev.Type)
	}

	select {
	case msg := <-scenarios:
		sc := msg.(event.Scenario)
		if sc.Type != wire.ScenarioPaymentReceived || sc.PersonID != "42" {
			t.Errorf("scenario = %+v", sc)
		}
	case <-time.After(time.Second):
		t.Fatal("no scenario event published")
	}

	if _, ok := reg.Get(actor.Key{Kind: actor.KindAcc, Site: "site-a", ID: "POS_1"}); !ok {
		t.Error("acc actor missing after ingest")
	}
}

func TestDeliverRetriesAfterEviction(t *testing.T) {
	rt, reg, _ := newTestRouter(t, &memWriter{}, 40*time.Millisecond)
	key := actor.Key{Kind: actor.KindPerson, Site: "site-a", ID: "42"}

	rt.Route(&event.Event{Type: event.TypeZoneEntry, Time: time.Now(), Site: "site-a", PersonID: "42", Zone: "A"})
	first, _ := reg.Get(key)

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("actor was not evicted")
	}

	// The next event lands on a fresh actor with empty state.
	rt.Route(&event.Event{Type: event.TypeZoneEntry, Time: time.Now(), Site: "site-a", PersonID: "42", Zone: "B"})
	ps := snapshot(t, reg, key).(*actor.PersonSnapshot)
	if len(ps.Visits) != 1 || ps.Visits[0].Zone != "B" {
		t.Errorf("fresh actor visits = %+v, want only B", ps.Visits)
	}
}

package actor_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
)

func TestActorMailboxPreservesOrder(t *testing.T) {
	b := actor.NewPerson(personKey, &fakeJourneys{})
	a := actor.Start(personKey, b, time.Hour, nil)
	defer a.Stop()

	t0 := time.Now()
	for i := 0; i < 20; i++ {
		zone := fmt.Sprintf("Z%d", i)
		if !a.Send(ev(event.TypeZoneEntry, t0.Add(time.Duration(i)*time.Second), func(e *event.Event) { e.Zone = zone })) {
			t.Fatalf("send %d failed", i)
		}
	}

	snap, ok := a.Query()
	if !ok {
		t.Fatal("query failed on a live actor")
	}
	ps := snap.(*actor.PersonSnapshot)
	// The query message queues behind all sends, so the snapshot must
	// reflect every event in dispatch order: newest visit is Z19.
	if ps.CurrentZone != "Z19" {
		t.Errorf("CurrentZone = %q, want Z19", ps.CurrentZone)
	}
	if len(ps.Visits) != 20 || ps.Visits[0].Zone != "Z19" || ps.Visits[19].Zone != "Z0" {
		t.Errorf("visits out of order: first %q last %q (len %d)",
			ps.Visits[0].Zone, ps.Visits[len(ps.Visits)-1].Zone, len(ps.Visits))
	}
}

func TestActorQueryAfterStop(t *testing.T) {
	b := actor.NewPerson(personKey, &fakeJourneys{})
	a := actor.Start(personKey, b, time.Hour, nil)

	a.Stop()
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not stop")
	}

	if _, ok := a.Query(); ok {
		t.Error("query against a stopped actor must report absence, not block or panic")
	}
	if a.Send(ev(event.TypeZoneEntry, time.Now())) {
		t.Error("send to a stopped actor must report failure")
	}
}

func TestActorStopsOnTerminalTransition(t *testing.T) {
	journeys := &fakeJourneys{}
	b := actor.NewPerson(personKey, journeys)
	a := actor.Start(personKey, b, time.Hour, nil)

	a.Send(ev(event.TypeExitConfirmed, time.Now()))
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not stop after exit.confirmed")
	}
	if journeys.count() != 1 {
		t.Errorf("journey writes = %d, want 1", journeys.count())
	}
}

func TestActorIdleEviction(t *testing.T) {
	stopped := make(chan struct{})
	b := actor.NewPerson(personKey, &fakeJourneys{})
	actor.Start(personKey, b, 50*time.Millisecond, func(*actor.Actor) { close(stopped) })

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("idle actor was not evicted")
	}
}

func TestActorIdleTimerResetsOnTraffic(t *testing.T) {
	b := actor.NewPerson(personKey, &fakeJourneys{})
	a := actor.Start(personKey, b, 200*time.Millisecond, nil)
	defer a.Stop()

	// Keep the actor busy past several idle windows.
	for i := 0; i < 5; i++ {
		time.Sleep(100 * time.Millisecond)
		if !a.Send(ev(event.TypeZoneEntry, time.Now())) {
			t.Fatalf("send %d failed: actor evicted despite traffic", i)
		}
	}
	if _, ok := a.Query(); !ok {
		t.Error("actor should still be alive while receiving traffic")
	}
}

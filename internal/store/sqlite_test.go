package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
	"github.com/gyaneshwarpardhi/gatewatch/internal/incident"
	"github.com/gyaneshwarpardhi/gatewatch/internal/store"
)

func openTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testIncident(id, typ, site, gateID string, createdAt time.Time) *incident.Incident {
	return &incident.Incident{
		ID:        id,
		Type:      typ,
		Severity:  incident.SeverityHigh,
		Category:  "gate",
		Site:      site,
		GateID:    gateID,
		Status:    incident.StatusNew,
		CreatedAt: createdAt,
		Context:   map[string]interface{}{"open_duration_ms": float64(150000)},
	}
}

func TestInsertAndQueryIncidents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.InsertIncident(ctx, testIncident("a", "unusual_gate_opening", "site-a", "5", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertIncident(ctx, testIncident("b", "unusual_gate_opening", "site-a", "6", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertIncident(ctx, testIncident("c", "tailgating", "site-b", "", now.Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}

	got, err := s.QueryIncidents(ctx, incident.Query{
		Type:     "unusual_gate_opening",
		Site:     "site-a",
		Since:    now.Add(-10 * time.Minute),
		StatusIn: []string{incident.StatusNew},
		GateID:   "5",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("narrowed query = %+v, want just incident a", got)
	}
	if got[0].Context["open_duration_ms"] != float64(150000) {
		t.Errorf("context round-trip = %+v", got[0].Context)
	}

	all, err := s.QueryIncidents(ctx, incident.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered query = %d rows, want 3", len(all))
	}
}

func TestQuerySinceExcludesOldIncidents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.InsertIncident(ctx, testIncident("old", "unusual_traffic", "site-a", "", now.Add(-time.Hour)))
	s.InsertIncident(ctx, testIncident("new", "unusual_traffic", "site-a", "", now))

	got, err := s.QueryIncidents(ctx, incident.Query{Type: "unusual_traffic", Since: now.Add(-5 * time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("since-filtered query = %+v, want just the recent incident", got)
	}
}

// Timestamps are stored fixed-width; a trimmed fractional second would make
// a whole-second timestamp sort after a later subsecond one.
func TestQueryIncidentsSubsecondBoundary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	s.InsertIncident(ctx, testIncident("whole", "unusual_traffic", "site-a", "", base))
	s.InsertIncident(ctx, testIncident("half", "unusual_traffic", "site-a", "", base.Add(500*time.Millisecond)))

	got, err := s.QueryIncidents(ctx, incident.Query{Type: "unusual_traffic", Since: base.Add(250 * time.Millisecond)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "half" {
		t.Fatalf("since-filtered query = %+v, want just the subsecond incident", got)
	}

	all, err := s.QueryIncidents(ctx, incident.Query{Type: "unusual_traffic"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "half" || all[1].ID != "whole" {
		t.Errorf("ordering across the subsecond boundary is wrong: %q then %q", all[0].ID, all[1].ID)
	}
}

func TestUpdateIncidentStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InsertIncident(ctx, testIncident("a", "tailgating", "site-a", "", time.Now()))

	if err := s.UpdateIncidentStatus(ctx, "a", incident.StatusAcknowledged); err != nil {
		t.Fatal(err)
	}
	inc, err := s.GetIncident(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if inc.Status != incident.StatusAcknowledged {
		t.Errorf("Status = %q, want acknowledged", inc.Status)
	}

	if err := s.UpdateIncidentStatus(ctx, "missing", incident.StatusResolved); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update of missing incident = %v, want ErrNotFound", err)
	}
}

func TestGetIncidentIncludesActions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InsertIncident(ctx, testIncident("a", "tailgating", "site-a", "", time.Now()))
	if err := s.AppendAction(ctx, "a", incident.ExecutedAction{Type: "notify_security", At: time.Now(), Success: true, Message: "done"}); err != nil {
		t.Fatal(err)
	}

	inc, err := s.GetIncident(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(inc.ExecutedActions) != 1 || inc.ExecutedActions[0].Type != "notify_security" {
		t.Errorf("executed actions = %+v", inc.ExecutedActions)
	}

	if _, err := s.GetIncident(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get of missing incident = %v, want ErrNotFound", err)
	}
}

func TestCountByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InsertIncident(ctx, testIncident("a", "tailgating", "site-a", "", time.Now()))
	s.InsertIncident(ctx, testIncident("b", "tailgating", "site-a", "", time.Now()))
	s.UpdateIncidentStatus(ctx, "b", incident.StatusResolved)

	n, err := s.CountByStatus(ctx, incident.StatusNew, incident.StatusAcknowledged, incident.StatusInProgress)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("open count = %d, want 1", n)
	}
}

func TestInsertEvent(t *testing.T) {
	s := openTestStore(t)
	auth := true
	err := s.InsertEvent(context.Background(), &event.Event{
		Type:       event.TypeZoneEntry,
		Time:       time.Now(),
		Site:       "site-a",
		PersonID:   "42",
		Zone:       "POS_1",
		Authorized: &auth,
		DurationMs: 1500,
		Raw:        map[string]interface{}{"t": "zone_entry"},
	})
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func TestWriteJourney(t *testing.T) {
	s := openTestStore(t)
	exited := time.Now()
	err := s.WriteJourney(context.Background(), &actor.Journey{
		PersonID:     "42",
		Site:         "site-a",
		FirstSeenAt:  exited.Add(-5 * time.Minute),
		ExitedAt:     exited,
		Visits:       []actor.ZoneVisit{{Zone: "POS_1", EnteredAt: exited.Add(-4 * time.Minute)}},
		Payments:     []actor.Payment{{At: exited.Add(-2 * time.Minute), Zone: "POS_1"}},
		HasPayment:   true,
		DwelledAtPOS: true,
	})
	if err != nil {
		t.Fatalf("write journey: %v", err)
	}
}

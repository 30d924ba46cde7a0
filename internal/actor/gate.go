package actor

import (
	"log/slog"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
	"github.com/gyaneshwarpardhi/gatewatch/internal/incident"
)

// Gate states.
const (
	GateClosed = "closed"
	GateOpen   = "open"
	GateMoving = "moving"
)

const gateHistoryCap = 100

// IncidentTypeUnusualOpen is raised when a gate stays open past the
// configured threshold with no closing transition.
const IncidentTypeUnusualOpen = "unusual_gate_opening"

// IncidentReporter receives incident candidates from actors. Delivery is
// fire-and-forget; the actor goroutine never blocks on it.
type IncidentReporter interface {
	Report(c incident.Candidate)
}

// GateSnapshot is the read model returned by Query.
type GateSnapshot struct {
	Key           Key            `json:"key"`
	State         string         `json:"state"`
	Fault         bool           `json:"fault"`
	OpenedAt      time.Time      `json:"opened_at"`
	ClosedAt      time.Time      `json:"closed_at"`
	PersonsInZone []string       `json:"persons_in_zone"`
	CycleExits    int            `json:"cycle_exits"`
	MinOpenMs     int64          `json:"min_open_duration_ms"`
	MaxOpenMs     int64          `json:"max_open_duration_ms"`
	LastOpenMs    int64          `json:"last_open_duration_ms"`
	History       []HistoryEntry `json:"history"`
}

type gateBehavior struct {
	key          Key
	state        string
	fault        bool
	openedAt     time.Time
	closedAt     time.Time
	occupants    map[string]struct{}
	cycleExits   int
	minOpenMs    int64
	maxOpenMs    int64
	lastOpenMs   int64
	hist         history
	reporter     IncidentReporter
	unusualAfter time.Duration
}

// NewGate creates the behavior for one physical gate. unusualAfter is how
// long the gate may stay open before an unusual-open incident is requested.
func NewGate(key Key, reporter IncidentReporter, unusualAfter time.Duration) Behavior {
	return &gateBehavior{
		key:          key,
		state:        GateClosed,
		occupants:    make(map[string]struct{}),
		hist:         newHistory(gateHistoryCap),
		reporter:     reporter,
		unusualAfter: unusualAfter,
	}
}

func (g *gateBehavior) OnEvent(ev *event.Event) Effect {
	g.hist.add(ev)
	if f, ok := ev.Raw["fault"].(bool); ok {
		g.fault = f
	}

	switch ev.Type {
	case event.TypeGateOpened:
		if g.state == GateOpen {
			// Heartbeat-style repeat while already open: history only, no
			// timer reset, no counter reset.
			return Effect{}
		}
		g.state = GateOpen
		g.openedAt = ev.Time
		g.cycleExits = 0
		// Arming replaces any pending alarm, so a genuine re-open both
		// cancels and restarts the unusual-open watch.
		return Effect{ArmAlarm: g.unusualAfter}

	case event.TypeGateClosed:
		if g.state != GateClosed && !g.openedAt.IsZero() {
			d := ev.Time.Sub(g.openedAt).Milliseconds()
			g.lastOpenMs = d
			if g.minOpenMs == 0 || d < g.minOpenMs {
				g.minOpenMs = d
			}
			if d > g.maxOpenMs {
				g.maxOpenMs = d
			}
		}
		g.state = GateClosed
		g.closedAt = ev.Time
		return Effect{CancelAlarm: true}

	case event.TypeGateMoving:
		g.state = GateMoving

	case event.TypeGateZoneEntry:
		if ev.PersonID != "" {
			g.occupants[ev.PersonID] = struct{}{} // idempotent insert
		}

	case event.TypeGateZoneExit:
		if ev.PersonID != "" {
			delete(g.occupants, ev.PersonID) // exact-match removal
		}
		if g.state == GateOpen {
			g.cycleExits++
		}

	default:
		slog.Debug("gate actor ignoring unknown event type", "key", g.key.String(), "type", ev.Type)
	}
	return Effect{}
}

// OnAlarm fires when the unusual-open timer elapses. The gate may have
// closed between arming and firing only if the close event was lost, since
// a close cancels the alarm; the state check keeps the race harmless.
func (g *gateBehavior) OnAlarm() Effect {
	if g.state != GateOpen {
		return Effect{}
	}
	slog.Warn("gate open past threshold", "gate", g.key.String(),
		"open_for", time.Since(g.openedAt).Round(time.Second))
	g.reporter.Report(incident.Candidate{
		Type:     IncidentTypeUnusualOpen,
		Severity: incident.SeverityHigh,
		Category: "gate",
		Site:     g.key.Site,
		GateID:   g.key.ID,
		Context: map[string]interface{}{
			"opened_at":        g.openedAt,
			"open_duration_ms": time.Since(g.openedAt).Milliseconds(),
			"persons_in_zone":  len(g.occupants),
		},
		SuggestedActions: []incident.SuggestedAction{
			{Type: "notify_security", Auto: true},
		},
	})
	return Effect{}
}

func (g *gateBehavior) Snapshot() interface{} {
	persons := make([]string, 0, len(g.occupants))
	for id := range g.occupants {
		persons = append(persons, id)
	}
	sort.Strings(persons)
	return &GateSnapshot{
		Key:           g.key,
		State:         g.state,
		Fault:         g.fault,
		OpenedAt:      g.openedAt,
		ClosedAt:      g.closedAt,
		PersonsInZone: persons,
		CycleExits:    g.cycleExits,
		MinOpenMs:     g.minOpenMs,
		MaxOpenMs:     g.maxOpenMs,
		LastOpenMs:    g.lastOpenMs,
		History:       g.hist.recent(),
	}
}

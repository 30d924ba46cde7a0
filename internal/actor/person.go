package actor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
)

// Person lifecycle states.
const (
	PersonTracking = "tracking"
	PersonInZone   = "in_zone"
	PersonAtGate   = "at_gate"
	PersonExited   = "exited"
)

const (
	personVisitCap   = 50
	personHistoryCap = 50

	// posDwellThresholdMs is the minimum continuous dwell in a POS-prefixed
	// zone that counts as "spent time at the terminal".
	posDwellThresholdMs = 30_000
)

// ZoneVisit is one stay in a zone. ExitedAt is nil while the visit is open.
type ZoneVisit struct {
	Zone      string     `json:"zone"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	DwellMs   int64      `json:"dwell_ms,omitempty"`
}

// Payment is one payment observed for the tracked person.
type Payment struct {
	At   time.Time `json:"at"`
	Zone string    `json:"zone,omitempty"`
}

// Journey is the persisted record of one tracked person's full lifecycle,
// written exactly once when the actor reaches its terminal state.
type Journey struct {
	PersonID     string      `json:"person_id"`
	Site         string      `json:"site"`
	FirstSeenAt  time.Time   `json:"first_seen_at"`
	ExitedAt     time.Time   `json:"exited_at"`
	Visits       []ZoneVisit `json:"visits"`
	Payments     []Payment   `json:"payments"`
	HasPayment   bool        `json:"has_payment"`
	DwelledAtPOS bool        `json:"dwelled_at_pos"`
}

// JourneyWriter persists completed journeys to the external store.
type JourneyWriter interface {
	WriteJourney(ctx context.Context, j *Journey) error
}

// PersonSnapshot is the read model returned by Query.
type PersonSnapshot struct {
	Key          Key            `json:"key"`
	State        string         `json:"state"`
	CurrentZone  string         `json:"current_zone,omitempty"`
	Visits       []ZoneVisit    `json:"visits"` // newest first
	Payments     []Payment      `json:"payments"`
	HasPayment   bool           `json:"has_payment"`
	DwelledAtPOS bool           `json:"dwelled_at_pos"`
	History      []HistoryEntry `json:"history"`
}

type personBehavior struct {
	key          Key
	state        string
	currentZone  string
	visits       []ZoneVisit // newest first, capped
	payments     []Payment
	hasPayment   bool
	dwelledAtPOS bool
	firstSeen    time.Time
	hist         history
	journeys     JourneyWriter
}

// NewPerson creates the behavior for one tracked person.
func NewPerson(key Key, journeys JourneyWriter) Behavior {
	return &personBehavior{
		key:       key,
		state:     PersonTracking,
		firstSeen: time.Now(),
		hist:      newHistory(personHistoryCap),
		journeys:  journeys,
	}
}

func (p *personBehavior) OnEvent(ev *event.Event) Effect {
	p.hist.add(ev)

	switch ev.Type {
	case event.TypeZoneEntry:
		p.state = PersonInZone
		p.currentZone = ev.Zone
		p.openVisit(ev.Zone, ev.Time)

	case event.TypeZoneExit:
		p.closeVisit(ev)
		p.state = PersonTracking
		p.currentZone = ""

	case event.TypePersonStateChanged:
		if s, ok := ev.Raw["state"].(string); ok && s == "at_gate" {
			p.state = PersonAtGate
		}

	case event.TypePaymentReceived:
		// Payments are accepted in any state.
		p.payments = append(p.payments, Payment{At: ev.Time, Zone: ev.Zone})
		p.hasPayment = true

	case event.TypeExitConfirmed:
		p.state = PersonExited
		p.persistJourney(ev.Time)
		return Effect{Stop: true}

	case event.TypeExitRejected:
		// Explicit no-op transition: the person stays where they are.

	default:
		// Unknown types ride along in history for forward compatibility.
		slog.Debug("person actor ignoring unknown event type", "key", p.key.String(), "type", ev.Type)
	}
	return Effect{}
}

func (p *personBehavior) OnAlarm() Effect { return Effect{} }

func (p *personBehavior) openVisit(zone string, at time.Time) {
	v := ZoneVisit{Zone: zone, EnteredAt: at}
	if len(p.visits) == personVisitCap {
		p.visits = p.visits[:personVisitCap-1]
	}
	p.visits = append([]ZoneVisit{v}, p.visits...)
}

// closeVisit closes the most recent open visit to the event's zone and
// derives the POS-dwell flag.
func (p *personBehavior) closeVisit(ev *event.Event) {
	for i := range p.visits {
		v := &p.visits[i]
		if v.Zone != ev.Zone || v.ExitedAt != nil {
			continue
		}
		exited := ev.Time
		v.ExitedAt = &exited
		if ev.DurationMs > 0 {
			v.DwellMs = ev.DurationMs
		} else {
			v.DwellMs = exited.Sub(v.EnteredAt).Milliseconds()
		}
		if strings.HasPrefix(v.Zone, "POS") && v.DwellMs > posDwellThresholdMs {
			p.dwelledAtPOS = true
		}
		return
	}
	// Exit without a matching open visit: nothing to close.
}

func (p *personBehavior) persistJourney(exitedAt time.Time) {
	j := &Journey{
		PersonID:     p.key.ID,
		Site:         p.key.Site,
		FirstSeenAt:  p.firstSeen,
		ExitedAt:     exitedAt,
		Visits:       append([]ZoneVisit(nil), p.visits...),
		Payments:     append([]Payment(nil), p.payments...),
		HasPayment:   p.hasPayment,
		DwelledAtPOS: p.dwelledAtPOS,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.journeys.WriteJourney(ctx, j); err != nil {
		slog.Warn("journey persistence failed", "person", p.key.String(), "err", err)
	}
}

func (p *personBehavior) Snapshot() interface{} {
	return &PersonSnapshot{
		Key:          p.key,
		State:        p.state,
		CurrentZone:  p.currentZone,
		Visits:       append([]ZoneVisit(nil), p.visits...),
		Payments:     append([]Payment(nil), p.payments...),
		HasPayment:   p.hasPayment,
		DwelledAtPOS: p.dwelledAtPOS,
		History:      p.hist.recent(),
	}
}

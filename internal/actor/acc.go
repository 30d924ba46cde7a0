package actor

import (
	"math"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
	"github.com/gyaneshwarpardhi/gatewatch/internal/wire"
)

const accHistoryCap = 50

// AccSnapshot is the read model for one payment terminal. MatchRatePct is
// matched/received as a percentage with one decimal, nil before the first
// received event.
type AccSnapshot struct {
	Key          Key            `json:"key"`
	Received     int64          `json:"received"`
	Matched      int64          `json:"matched"`
	Unmatched    int64          `json:"unmatched"`
	MatchRatePct *float64       `json:"match_rate_pct,omitempty"`
	LastEventAt  time.Time      `json:"last_event_at"`
	History      []HistoryEntry `json:"history"`
}

// accBehavior is counter-only: no lifecycle states, just correlation
// bookkeeping per (site, terminal zone).
type accBehavior struct {
	key       Key
	received  int64
	matched   int64
	unmatched int64
	lastEvent time.Time
	hist      history
}

// NewAcc creates the behavior for one payment terminal.
func NewAcc(key Key) Behavior {
	return &accBehavior{key: key, hist: newHistory(accHistoryCap)}
}

func (a *accBehavior) OnEvent(ev *event.Event) Effect {
	a.hist.add(ev)
	a.lastEvent = ev.Time

	switch {
	case ev.Type == event.TypeAccReceived:
		a.received++
	case wire.MatchedAliases[ev.Type]:
		// acc.matched and person.payment.received are two labels for the
		// same terminal match; the alias set lives in wire.
		a.matched++
	case ev.Type == event.TypeAccUnmatched:
		a.unmatched++
	}
	return Effect{}
}

func (a *accBehavior) OnAlarm() Effect { return Effect{} }

func (a *accBehavior) Snapshot() interface{} {
	snap := &AccSnapshot{
		Key:         a.key,
		Received:    a.received,
		Matched:     a.matched,
		Unmatched:   a.unmatched,
		LastEventAt: a.lastEvent,
		History:     a.hist.recent(),
	}
	if a.received > 0 {
		rate := math.Round(float64(a.matched)/float64(a.received)*1000) / 10
		snap.MatchRatePct = &rate
	}
	return snap
}

package actor

import (
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
)

// HistoryEntry is one bounded-history record. Actors keep only the fields
// useful for inspection, not the full raw payload.
type HistoryEntry struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Zone string    `json:"zone,omitempty"`
}

// history is a fixed-capacity event log, newest last. Appending past the
// cap drops the oldest entry.
type history struct {
	cap     int
	entries []HistoryEntry
}

func newHistory(cap int) history {
	return history{cap: cap}
}

func (h *history) add(ev *event.Event) {
	e := HistoryEntry{Type: ev.Type, Time: ev.Time, Zone: ev.Zone}
	if len(h.entries) == h.cap {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = e
		return
	}
	h.entries = append(h.entries, e)
}

// recent returns a copy, newest first, safe to hand out in snapshots.
func (h *history) recent() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[len(h.entries)-1-i] = e
	}
	return out
}

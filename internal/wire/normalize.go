// Package wire converts raw gateway payloads into canonical events.
//
// Two wire shapes are in production: the verbose legacy shape with an
// ISO-8601 timestamp and spelled-out keys, and the compact gateway shape
// with an epoch-millisecond ts and abbreviated keys. Both normalize into
// the same event.Event; nothing downstream sees the difference.
package wire

import (
	"strconv"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
)

// MatchedAliases lists the canonical types the Acc actor counts as a
// terminal match. Two labels exist for historical reasons: the terminal
// reports acc.matched while the tracker re-emits the same fact as a
// person payment. A future third alias belongs here, nowhere else.
var MatchedAliases = map[string]bool{
	event.TypeAccMatched:      true,
	event.TypePaymentReceived: true,
}

// compactTypes maps topic segment + compact subtype to a canonical type.
var compactTypes = map[string]map[string]string{
	"gate": {
		"open":       event.TypeGateOpened,
		"opened":     event.TypeGateOpened,
		"close":      event.TypeGateClosed,
		"closed":     event.TypeGateClosed,
		"moving":     event.TypeGateMoving,
		"zone_entry": event.TypeGateZoneEntry,
		"zone_exit":  event.TypeGateZoneExit,
	},
	"person": {
		"zone_entry": event.TypeZoneEntry,
		"zone_exit":  event.TypeZoneExit,
		"state":      event.TypePersonStateChanged,
		"payment":    event.TypePaymentReceived,
	},
	"exit": {
		"confirmed": event.TypeExitConfirmed,
		"rejected":  event.TypeExitRejected,
	},
	"acc": {
		"received":  event.TypeAccReceived,
		"matched":   event.TypeAccMatched,
		"unmatched": event.TypeAccUnmatched,
	},
}

// Normalize converts one raw payload into a canonical event. topic is the
// transport topic the payload arrived on; its last segment selects the
// compact subtype table. Normalize never fails: unknown subtypes keep a
// generic dotted form and a bad timestamp defaults to now.
func Normalize(topic string, payload map[string]interface{}) *event.Event {
	if _, ok := payload["ts"]; ok {
		return normalizeCompact(topicSegment(topic), payload)
	}
	return normalizeVerbose(topicSegment(topic), payload)
}

// normalizeVerbose handles the legacy shape: explicit timestamp string,
// site checked in site > site_id > gateway_id priority, full key names.
func normalizeVerbose(segment string, p map[string]interface{}) *event.Event {
	ev := &event.Event{
		Type: str(p, "event_type", "type"),
		Time: parseISO(str(p, "timestamp")),
		Site: str(p, "site", "site_id", "gateway_id"),
		Zone: str(p, "zone"),
		Raw:  p,
	}
	if ev.Type == "" {
		ev.Type = segment + ".unknown"
	}
	ev.PersonID = id(p, "person_id")
	ev.GateID = id(p, "gate_id", "gid")
	ev.Authorized = boolPtr(p, "authorized")
	if d, ok := integer(p, "duration_ms", "dwell_ms"); ok {
		ev.DurationMs = d
	}
	return ev
}

// normalizeCompact handles the gateway shape: epoch-ms ts, abbreviated
// keys, logical subtype nested under t/type, topic segment as family.
func normalizeCompact(segment string, p map[string]interface{}) *event.Event {
	ev := &event.Event{
		Time: parseEpochMs(p["ts"]),
		Site: str(p, "site", "s"),
		Zone: str(p, "z", "zone"),
		Raw:  p,
	}
	sub := str(p, "t", "type")
	if types, ok := compactTypes[segment]; ok {
		if canonical, ok := types[sub]; ok {
			ev.Type = canonical
		}
	}
	if ev.Type == "" {
		if sub == "" {
			sub = "unknown"
		}
		ev.Type = segment + "." + sub
	}
	ev.PersonID = id(p, "tid", "person_id")
	ev.GateID = id(p, "gid", "gate_id")
	ev.Authorized = boolPtr(p, "auth", "authorized")
	if d, ok := integer(p, "dwell_ms", "duration_ms"); ok {
		ev.DurationMs = d
	}
	return ev
}

// topicSegment returns the last path element of a topic descriptor,
// e.g. "sensors/site-a/gate" -> "gate".
func topicSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// parseISO parses an ISO-8601 timestamp, defaulting to now on failure.
// Malformed clocks are a fact of life on the gateway fleet; dropping the
// event would be worse than mistiming it.
func parseISO(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}

func parseEpochMs(v interface{}) time.Time {
	switch n := v.(type) {
	case float64:
		return time.UnixMilli(int64(n))
	case int64:
		return time.UnixMilli(n)
	case int:
		return time.UnixMilli(int64(n))
	case string:
		if ms, err := strconv.ParseInt(n, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Now()
}

// str returns the first non-empty string value among keys.
func str(p map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := p[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// id returns the first present identifier among keys, formatting numeric
// wire ids as decimal strings.
func id(p map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		case int64:
			return strconv.FormatInt(v, 10)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

func boolPtr(p map[string]interface{}, keys ...string) *bool {
	for _, k := range keys {
		if b, ok := p[k].(bool); ok {
			return &b
		}
	}
	return nil
}

func integer(p map[string]interface{}, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := p[k].(type) {
		case float64:
			return int64(v), true
		case int64:
			return v, true
		case int:
			return int64(v), true
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// AccTerminalKey derives the Acc actor identity for an event: the POS zone
// the terminal sits in. Returns "" when the event carries no terminal zone.
func AccTerminalKey(ev *event.Event) string {
	if z := str(ev.Raw, "pos_zone"); z != "" {
		return z
	}
	if strings.HasPrefix(ev.Zone, "POS") {
		return ev.Zone
	}
	return ""
}

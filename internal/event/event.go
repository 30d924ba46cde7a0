package event

import "time"

// Canonical event types produced by normalization. The gateway emits more
// subtypes than these; anything unrecognized keeps its dotted raw form and
// flows through actors as history-only.
const (
	TypeZoneEntry          = "zone.entry"
	TypeZoneExit           = "zone.exit"
	TypePersonStateChanged = "person.state_changed"
	TypePaymentReceived    = "person.payment.received"
	TypeExitConfirmed      = "exit.confirmed"
	TypeExitRejected       = "exit.rejected"
	TypeGateOpened         = "gate.opened"
	TypeGateClosed         = "gate.closed"
	TypeGateMoving         = "gate.moving"
	TypeGateZoneEntry      = "gate.zone_entry"
	TypeGateZoneExit       = "gate.zone_exit"
	TypeAccReceived        = "acc.received"
	TypeAccMatched         = "acc.matched"
	TypeAccUnmatched       = "acc.unmatched"
)

// Event is the canonical shape every inbound wire payload normalizes to.
// It is read-only after normalization; scenario mapping derives a second
// value from the same raw payload rather than mutating this one.
type Event struct {
	Type       string                 `json:"type"`
	Time       time.Time              `json:"time"`
	Site       string                 `json:"site"`
	PersonID   string                 `json:"person_id,omitempty"`
	GateID     string                 `json:"gate_id,omitempty"`
	Zone       string                 `json:"zone,omitempty"`
	Authorized *bool                  `json:"authorized,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
}

// Scenario is the variant shape the external scenario-detection layer
// consumes. It carries its own canonical type and may rewrite person/zone
// fields (a terminal-side match becomes a synthetic payment event).
type Scenario struct {
	Event
	SourceType string `json:"source_type"` // canonical type of the raw event it was derived from
}

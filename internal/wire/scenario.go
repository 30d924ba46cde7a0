package wire

import (
	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
)

// Scenario-layer canonical types. The external scenario-detection service
// consumes a different vocabulary than the actors store; both shapes are
// derived from the same raw payload, never from each other.
const (
	ScenarioZoneEntered     = "person.zone.entered"
	ScenarioZoneExited      = "person.zone.exited"
	ScenarioPaymentReceived = "person.payment.received"
	ScenarioPersonExited    = "person.exited"
	ScenarioGateCycle       = "gate.cycle.completed"
)

// ToScenarioEvent maps a subset of raw topics/subtypes into the shape the
// scenario layer expects. The enrichment here is the single permitted
// field-overwrite pass: a terminal-side match is rewritten into a synthetic
// payment event carrying the matched person's id and the terminal zone.
// Returns false for events the scenario layer has no interest in.
func ToScenarioEvent(topic string, payload map[string]interface{}) (event.Scenario, bool) {
	ev := Normalize(topic, payload)
	sc := event.Scenario{Event: *ev, SourceType: ev.Type}

	switch ev.Type {
	case event.TypeZoneEntry:
		sc.Type = ScenarioZoneEntered
	case event.TypeZoneExit:
		sc.Type = ScenarioZoneExited
	case event.TypeExitConfirmed:
		sc.Type = ScenarioPersonExited
	case event.TypeGateClosed:
		sc.Type = ScenarioGateCycle
	case event.TypeAccMatched:
		// The terminal reports the match; the scenario layer wants it as a
		// payment attributed to the matched person in the terminal's zone.
		sc.Type = ScenarioPaymentReceived
		if pid := id(payload, "matched_tid", "tid", "person_id"); pid != "" {
			sc.PersonID = pid
		}
		if z := AccTerminalKey(ev); z != "" {
			sc.Zone = z
		}
	default:
		return event.Scenario{}, false
	}
	return sc, true
}

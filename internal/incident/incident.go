// Package incident creates, deduplicates and escalates operational
// incidents derived from actor state transitions.
package incident

import "time"

// Severity levels, highest first.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityInfo   = "info"
)

// Status lifecycle. Incidents are never deleted, only status-transitioned.
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
	StatusInProgress   = "in_progress"
	StatusResolved     = "resolved"
	StatusDismissed    = "dismissed"
)

// openStatuses are the statuses a duplicate can collapse onto.
var openStatuses = []string{StatusNew, StatusAcknowledged, StatusInProgress}

// SuggestedAction is an operator hint attached at creation time. Actions
// flagged Auto are executed immediately by the manager.
type SuggestedAction struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
	Auto   bool                   `json:"auto"`
}

// ExecutedAction records one action run against an incident.
type ExecutedAction struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
}

// Incident is the persisted record. Mutated only through status transitions
// and action appends.
type Incident struct {
	ID               string                 `json:"id"`
	Type             string                 `json:"type"`
	Severity         string                 `json:"severity"`
	Category         string                 `json:"category"`
	Site             string                 `json:"site"`
	GateID           string                 `json:"gate_id,omitempty"`
	Status           string                 `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
	Context          map[string]interface{} `json:"context,omitempty"`
	RelatedPersonID  string                 `json:"related_person_id,omitempty"`
	SuggestedActions []SuggestedAction      `json:"suggested_actions,omitempty"`
	ExecutedActions  []ExecutedAction       `json:"executed_actions,omitempty"`
}

// Candidate is an incident request before dedup. Actors and the scenario
// layer produce candidates; only the manager turns them into Incidents.
type Candidate struct {
	Type             string
	Severity         string
	Category         string
	Site             string
	GateID           string
	RelatedPersonID  string
	Context          map[string]interface{}
	SuggestedActions []SuggestedAction
}

// Package actions holds the built-in auto-action executors.
package actions

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/gatewatch/internal/incident"
)

const defaultChannel = "notifications.security"

// Notify publishes an incident summary on the broadcast bus so the
// on-site security console picks it up. Delivery is fire-and-forget;
// the executor succeeds once the message is handed to the bus.
type Notify struct {
	bus incident.Publisher
}

// NewNotify creates the notify_security executor.
func NewNotify(bus incident.Publisher) *Notify {
	return &Notify{bus: bus}
}

func (n *Notify) Type() string { return "notify_security" }

func (n *Notify) Execute(ctx context.Context, inc *incident.Incident, params map[string]interface{}) (string, error) {
	channel := defaultChannel
	if c, ok := params["channel"].(string); ok && c != "" {
		channel = c
	}
	n.bus.Publish(channel, map[string]interface{}{
		"incident_id": inc.ID,
		"type":        inc.Type,
		"severity":    inc.Severity,
		"site":        inc.Site,
		"gate_id":     inc.GateID,
		"created_at":  inc.CreatedAt,
	})
	return fmt.Sprintf("notified %s", channel), nil
}

package incident

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/gatewatch/internal/metrics"
)

// Store is the persistence contract the manager needs. The concrete store
// lives in internal/store; tests substitute fakes.
type Store interface {
	InsertIncident(ctx context.Context, inc *Incident) error
	AppendAction(ctx context.Context, incidentID string, act ExecutedAction) error
	QueryIncidents(ctx context.Context, q Query) ([]*Incident, error)
	CountByStatus(ctx context.Context, statuses ...string) (int, error)
}

// Query narrows a dedup or sweep lookup. Zero fields are unconstrained.
type Query struct {
	Type     string
	Site     string
	Since    time.Time
	StatusIn []string
	PersonID string
	GateID   string
}

// Publisher is the broadcast-bus contract: fire-and-forget, no ack.
type Publisher interface {
	Publish(channel string, message interface{})
}

// Bus channels the manager writes to. The core never subscribes.
const (
	ChannelIncidents   = "incidents"
	ChannelEscalations = "incidents.escalations"
)

// Config holds the manager's timing knobs. Swappable at runtime via
// SwapConfig (config hot-reload).
type Config struct {
	DedupWindow     time.Duration
	EscalationAfter time.Duration
	SweepInterval   time.Duration
}

// Manager deduplicates candidates against a rolling window, persists
// accepted incidents, executes auto-actions and periodically escalates
// stale unacknowledged high-severity incidents.
type Manager struct {
	store   Store
	bus     Publisher
	actions *ActionRegistry
	conf    atomic.Pointer[Config]

	// escalated remembers which incident ids this process already flagged,
	// so the sweep does not spam the escalation channel. Pruned each sweep
	// to the ids still in status "new". Only the sweep goroutine touches it.
	escalated map[string]time.Time
}

// NewManager creates a Manager. Run must be called to start the sweep.
func NewManager(store Store, bus Publisher, actions *ActionRegistry, conf Config) *Manager {
	m := &Manager{
		store:     store,
		bus:       bus,
		actions:   actions,
		escalated: make(map[string]time.Time),
	}
	m.conf.Store(&conf)
	return m
}

// SwapConfig atomically replaces the timing configuration (hot-reload).
func (m *Manager) SwapConfig(conf Config) {
	m.conf.Store(&conf)
}

// Create runs the dedup check and persists the candidate if it is new.
// Returns (incident, duplicate, error): on a duplicate the matched existing
// incident is returned and nothing is written. A failed dedup query fails
// open — over-reporting beats losing a real incident.
func (m *Manager) Create(ctx context.Context, c Candidate) (*Incident, bool, error) {
	conf := m.conf.Load()

	q := Query{
		Type:     c.Type,
		Site:     c.Site,
		Since:    time.Now().Add(-conf.DedupWindow),
		StatusIn: openStatuses,
	}
	switch {
	case c.RelatedPersonID != "":
		q.PersonID = c.RelatedPersonID
	case c.GateID != "" && c.GateID != "0":
		q.GateID = c.GateID
	}

	existing, err := m.store.QueryIncidents(ctx, q)
	if err != nil {
		slog.Warn("incident dedup query failed, treating as no duplicate",
			"type", c.Type, "site", c.Site, "err", err)
		existing = nil
	}
	if len(existing) > 0 {
		metrics.IncidentsDeduplicated.WithLabelValues(c.Type, c.Site).Inc()
		return existing[0], true, nil
	}

	inc := &Incident{
		ID:               uuid.New().String(),
		Type:             c.Type,
		Severity:         c.Severity,
		Category:         c.Category,
		Site:             c.Site,
		GateID:           c.GateID,
		Status:           StatusNew,
		CreatedAt:        time.Now(),
		Context:          c.Context,
		RelatedPersonID:  c.RelatedPersonID,
		SuggestedActions: c.SuggestedActions,
	}
	if err := m.store.InsertIncident(ctx, inc); err != nil {
		metrics.PersistFailures.WithLabelValues("incident").Inc()
		return nil, false, err
	}
	metrics.IncidentsCreated.WithLabelValues(inc.Type, inc.Severity, inc.Category, inc.Site).Inc()
	m.refreshActiveGauge(ctx)
	m.bus.Publish(ChannelIncidents, inc)

	m.runAutoActions(ctx, inc)
	return inc, false, nil
}

// Report is the fire-and-forget entry point actors use. The actor goroutine
// must never block on a store round-trip.
func (m *Manager) Report(c Candidate) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, _, err := m.Create(ctx, c); err != nil {
			slog.Warn("incident creation failed", "type", c.Type, "site", c.Site, "err", err)
		}
	}()
}

func (m *Manager) runAutoActions(ctx context.Context, inc *Incident) {
	for _, sa := range inc.SuggestedActions {
		if !sa.Auto {
			continue
		}
		act := ExecutedAction{Type: sa.Type, At: time.Now()}
		exec, err := m.actions.Get(sa.Type)
		if err != nil {
			act.Message = err.Error()
		} else if msg, err := exec.Execute(ctx, inc, sa.Params); err != nil {
			act.Message = err.Error()
		} else {
			act.Success = true
			act.Message = msg
		}
		inc.ExecutedActions = append(inc.ExecutedActions, act)
		if err := m.store.AppendAction(ctx, inc.ID, act); err != nil {
			slog.Warn("failed to record executed action", "incident", inc.ID, "action", act.Type, "err", err)
		}
		slog.Info("auto-action executed", "incident", inc.ID, "action", act.Type, "success", act.Success)
	}
}

// Run starts the periodic escalation sweep and blocks until ctx is done.
// Callers run it in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	for {
		conf := m.conf.Load()
		select {
		case <-time.After(conf.SweepInterval):
			m.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep flags stale unacknowledged high-severity incidents and refreshes
// the active-incident gauge. Notification delivery is external; the core
// only logs and publishes the flag.
func (m *Manager) sweep(ctx context.Context) {
	conf := m.conf.Load()
	open, err := m.store.QueryIncidents(ctx, Query{StatusIn: []string{StatusNew}})
	if err != nil {
		slog.Warn("escalation sweep query failed", "err", err)
		m.refreshActiveGauge(ctx)
		return
	}
	cutoff := time.Now().Add(-conf.EscalationAfter)
	stillNew := make(map[string]struct{}, len(open))
	for _, inc := range open {
		stillNew[inc.ID] = struct{}{}
		if inc.Severity != SeverityHigh || !inc.CreatedAt.Before(cutoff) {
			continue
		}
		if _, done := m.escalated[inc.ID]; done {
			continue
		}
		m.escalated[inc.ID] = time.Now()
		metrics.IncidentsEscalated.WithLabelValues(inc.Type, inc.Site).Inc()
		slog.Warn("incident escalated: unacknowledged past threshold",
			"incident", inc.ID, "type", inc.Type, "site", inc.Site,
			"age", time.Since(inc.CreatedAt).Round(time.Second))
		m.bus.Publish(ChannelEscalations, inc)
	}
	// Forget ids that have left "new" so the map stays bounded by the open
	// set. An incident that regresses to "new" will escalate again.
	for id := range m.escalated {
		if _, ok := stillNew[id]; !ok {
			delete(m.escalated, id)
		}
	}
	m.refreshActiveGauge(ctx)
}

func (m *Manager) refreshActiveGauge(ctx context.Context) {
	n, err := m.store.CountByStatus(ctx, openStatuses...)
	if err != nil {
		slog.Warn("active incident count failed", "err", err)
		return
	}
	metrics.ActiveIncidents.Set(float64(n))
}

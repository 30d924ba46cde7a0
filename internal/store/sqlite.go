// Package store persists events, incidents and journeys. The SQLite store
// satisfies the narrow contracts declared by its consumers (router,
// incident manager, person actors, API); tests substitute fakes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
	"github.com/gyaneshwarpardhi/gatewatch/internal/event"
	"github.com/gyaneshwarpardhi/gatewatch/internal/incident"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// timeLayout is fixed-width so the string comparisons in SQL match
// chronological order. RFC3339Nano trims trailing fractional zeros, which
// breaks lexicographic ordering at subsecond boundaries.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	site        TEXT NOT NULL,
	person_id   TEXT,
	gate_id     TEXT,
	zone        TEXT,
	authorized  INTEGER,
	duration_ms INTEGER,
	time        TEXT NOT NULL,
	raw         TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_site_time ON events(site, time);

CREATE TABLE IF NOT EXISTS incidents (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	severity          TEXT NOT NULL,
	category          TEXT,
	site              TEXT NOT NULL,
	gate_id           TEXT,
	status            TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	context           TEXT,
	related_person_id TEXT,
	suggested_actions TEXT
);
CREATE INDEX IF NOT EXISTS idx_incidents_dedup ON incidents(type, site, status, created_at);

CREATE TABLE IF NOT EXISTS incident_actions (
	incident_id TEXT NOT NULL,
	type        TEXT NOT NULL,
	at          TEXT NOT NULL,
	success     INTEGER NOT NULL,
	message     TEXT
);
CREATE INDEX IF NOT EXISTS idx_incident_actions ON incident_actions(incident_id);

CREATE TABLE IF NOT EXISTS journeys (
	id             TEXT PRIMARY KEY,
	person_id      TEXT NOT NULL,
	site           TEXT NOT NULL,
	first_seen_at  TEXT NOT NULL,
	exited_at      TEXT NOT NULL,
	visits         TEXT,
	payments       TEXT,
	has_payment    INTEGER NOT NULL,
	dwelled_at_pos INTEGER NOT NULL
);
`

// SQLite is the production store. Suitable for single-process use.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the
// schema. Use ":memory:" for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc/sqlite returns SQLITE_BUSY under connection churn, and a
	// pooled ":memory:" DSN would hand every connection its own database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// InsertEvent persists one canonical event.
func (s *SQLite) InsertEvent(ctx context.Context, ev *event.Event) error {
	raw, _ := json.Marshal(ev.Raw)
	var auth interface{}
	if ev.Authorized != nil {
		auth = *ev.Authorized
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, site, person_id, gate_id, zone, authorized, duration_ms, time, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), ev.Type, ev.Site, ev.PersonID, ev.GateID, ev.Zone,
		auth, ev.DurationMs, ev.Time.UTC().Format(timeLayout), string(raw))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertIncident persists a freshly created incident.
func (s *SQLite) InsertIncident(ctx context.Context, inc *incident.Incident) error {
	contextJSON, _ := json.Marshal(inc.Context)
	suggested, _ := json.Marshal(inc.SuggestedActions)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, type, severity, category, site, gate_id, status, created_at, context, related_person_id, suggested_actions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Type, inc.Severity, inc.Category, inc.Site, inc.GateID,
		inc.Status, inc.CreatedAt.UTC().Format(timeLayout),
		string(contextJSON), inc.RelatedPersonID, string(suggested))
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// AppendAction records one executed action against an incident.
func (s *SQLite) AppendAction(ctx context.Context, incidentID string, act incident.ExecutedAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_actions (incident_id, type, at, success, message)
		VALUES (?, ?, ?, ?, ?)`,
		incidentID, act.Type, act.At.UTC().Format(timeLayout), act.Success, act.Message)
	if err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// QueryIncidents returns incidents matching q, newest first.
func (s *SQLite) QueryIncidents(ctx context.Context, q incident.Query) ([]*incident.Incident, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, q.Type)
	}
	if q.Site != "" {
		where = append(where, "site = ?")
		args = append(args, q.Site)
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC().Format(timeLayout))
	}
	if len(q.StatusIn) > 0 {
		where = append(where, "status IN ("+placeholders(len(q.StatusIn))+")")
		for _, st := range q.StatusIn {
			args = append(args, st)
		}
	}
	if q.PersonID != "" {
		where = append(where, "related_person_id = ?")
		args = append(args, q.PersonID)
	}
	if q.GateID != "" {
		where = append(where, "gate_id = ?")
		args = append(args, q.GateID)
	}

	query := "SELECT id, type, severity, category, site, gate_id, status, created_at, context, related_person_id, suggested_actions FROM incidents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// GetIncident returns one incident by id, including executed actions.
func (s *SQLite) GetIncident(ctx context.Context, id string) (*incident.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, severity, category, site, gate_id, status, created_at, context, related_person_id, suggested_actions
		FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, at, success, message FROM incident_actions WHERE incident_id = ? ORDER BY at`, id)
	if err != nil {
		return nil, fmt.Errorf("query incident actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var act incident.ExecutedAction
		var at string
		if err := rows.Scan(&act.Type, &at, &act.Success, &act.Message); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		act.At, _ = time.Parse(timeLayout, at)
		inc.ExecutedActions = append(inc.ExecutedActions, act)
	}
	return inc, rows.Err()
}

// UpdateIncidentStatus transitions one incident. Incidents are never
// deleted, only status-transitioned.
func (s *SQLite) UpdateIncidentStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE incidents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update incident status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus counts incidents in any of the given statuses.
func (s *SQLite) CountByStatus(ctx context.Context, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM incidents WHERE status IN ("+placeholders(len(statuses))+")",
		args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return n, nil
}

// WriteJourney persists one completed person journey.
func (s *SQLite) WriteJourney(ctx context.Context, j *actor.Journey) error {
	visits, _ := json.Marshal(j.Visits)
	payments, _ := json.Marshal(j.Payments)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journeys (id, person_id, site, first_seen_at, exited_at, visits, payments, has_payment, dwelled_at_pos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), j.PersonID, j.Site,
		j.FirstSeenAt.UTC().Format(timeLayout), j.ExitedAt.UTC().Format(timeLayout),
		string(visits), string(payments), j.HasPayment, j.DwelledAtPOS)
	if err != nil {
		return fmt.Errorf("insert journey: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*incident.Incident, error) {
	var (
		inc              incident.Incident
		createdAt        string
		contextJSON      sql.NullString
		suggestedActions sql.NullString
		category         sql.NullString
		gateID           sql.NullString
		personID         sql.NullString
	)
	err := row.Scan(&inc.ID, &inc.Type, &inc.Severity, &category, &inc.Site, &gateID,
		&inc.Status, &createdAt, &contextJSON, &personID, &suggestedActions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.Category = category.String
	inc.GateID = gateID.String
	inc.RelatedPersonID = personID.String
	inc.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if contextJSON.Valid && contextJSON.String != "" {
		_ = json.Unmarshal([]byte(contextJSON.String), &inc.Context)
	}
	if suggestedActions.Valid && suggestedActions.String != "" {
		_ = json.Unmarshal([]byte(suggestedActions.String), &inc.SuggestedActions)
	}
	return &inc, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

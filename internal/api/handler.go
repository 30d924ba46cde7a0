// Package api exposes the ingestion and inspection HTTP surface. The
// dashboard UI and transport clients are external; this is the contract
// they talk to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
	"github.com/gyaneshwarpardhi/gatewatch/internal/incident"
	"github.com/gyaneshwarpardhi/gatewatch/internal/registry"
	"github.com/gyaneshwarpardhi/gatewatch/internal/router"
	"github.com/gyaneshwarpardhi/gatewatch/internal/store"
)

const maxBatchSize = 100

// IncidentStore is the slice of the store the API needs.
type IncidentStore interface {
	QueryIncidents(ctx context.Context, q incident.Query) ([]*incident.Incident, error)
	GetIncident(ctx context.Context, id string) (*incident.Incident, error)
	UpdateIncidentStatus(ctx context.Context, id, status string) error
}

// inboundEvent is the ingestion envelope: a topic descriptor plus the raw
// payload exactly as the gateway produced it.
type inboundEvent struct {
	Topic   string                 `json:"topic"`
	Payload map[string]interface{} `json:"payload"`
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	rt        *router.Router
	reg       *registry.Registry
	incidents IncidentStore
	mux       *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(rt *router.Router, reg *registry.Registry, incidents IncidentStore) http.Handler {
	h := &Handler{rt: rt, reg: reg, incidents: incidents, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/actors/{kind}", h.listActors)
	h.mux.HandleFunc("GET /v1/incidents", h.listIncidents)
	h.mux.HandleFunc("GET /v1/incidents/{id}", h.getIncident)
	h.mux.HandleFunc("POST /v1/incidents/{id}/ack", h.transitionIncident(incident.StatusAcknowledged))
	h.mux.HandleFunc("POST /v1/incidents/{id}/resolve", h.transitionIncident(incident.StatusResolved))
	h.mux.HandleFunc("POST /v1/incidents/{id}/dismiss", h.transitionIncident(incident.StatusDismissed))
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/events — ingest a single raw gateway payload.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var in inboundEvent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if in.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	ev := h.rt.Ingest(in.Topic, in.Payload)
	writeJSON(w, http.StatusAccepted, ev)
}

// POST /v1/events/batch — ingest up to 100 payloads in one call.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var batch []inboundEvent
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(batch) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(batch), maxBatchSize))
		return
	}
	accepted := 0
	for _, in := range batch {
		if in.Topic == "" {
			continue
		}
		h.rt.Ingest(in.Topic, in.Payload)
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"total":    len(batch),
		"accepted": accepted,
		"skipped":  len(batch) - accepted,
	})
}

// GET /v1/actors/{kind} — snapshot every live actor of one kind.
func (h *Handler) listActors(w http.ResponseWriter, r *http.Request) {
	kind := actor.Kind(r.PathValue("kind"))
	switch kind {
	case actor.KindPerson, actor.KindGate, actor.KindAcc:
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown actor kind %q", kind))
		return
	}
	entries := h.reg.ListAll(kind)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kind":   kind,
		"count":  len(entries),
		"actors": entries,
	})
}

// GET /v1/incidents — list incidents, optionally filtered by site, type
// and status, newest first.
func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	q := incident.Query{
		Site: r.URL.Query().Get("site"),
		Type: r.URL.Query().Get("type"),
	}
	if st := r.URL.Query().Get("status"); st != "" {
		q.StatusIn = []string{st}
	}
	incidents, err := h.incidents.QueryIncidents(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(incidents),
		"incidents": incidents,
	})
}

// GET /v1/incidents/{id}
func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.GetIncident(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// transitionIncident builds a handler moving an incident to the given status.
func (h *Handler) transitionIncident(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		err := h.incidents.UpdateIncidentStatus(r.Context(), id, status)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
	}
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the persistence queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.rt.QueueUtilization()
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"live_actors":       h.reg.Len(),
	})
}

// loggingMiddleware logs one line per request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

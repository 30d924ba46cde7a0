package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_events_received_total",
		Help: "Total number of inbound events, labelled by topic, canonical type and site.",
	}, []string{"topic", "type", "site"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatewatch_events_dropped_total",
		Help: "Total number of events rejected because the persistence queue was full.",
	})

	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_persist_failures_total",
		Help: "Total number of failed store writes, labelled by record kind.",
	}, []string{"kind"})

	ActorsLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gatewatch_actors_live",
		Help: "Number of live entity actors, labelled by kind.",
	}, []string{"kind"})

	ActorsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_actors_evicted_total",
		Help: "Total number of actors stopped by the idle timeout, labelled by kind.",
	}, []string{"kind"})

	IncidentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_incidents_created_total",
		Help: "Total number of incidents persisted, labelled by type, severity, category and site.",
	}, []string{"type", "severity", "category", "site"})

	IncidentsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_incidents_deduplicated_total",
		Help: "Total number of incident candidates suppressed as duplicates, labelled by type and site.",
	}, []string{"type", "site"})

	IncidentsEscalated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_incidents_escalated_total",
		Help: "Total number of stale high-severity incidents flagged for escalation.",
	}, []string{"type", "site"})

	ActiveIncidents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatewatch_incidents_active",
		Help: "Current number of incidents in a non-terminal status.",
	})

	QueryTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewatch_actor_query_timeouts_total",
		Help: "Total number of actor state queries that timed out or hit a stopped actor.",
	}, []string{"kind"})
)

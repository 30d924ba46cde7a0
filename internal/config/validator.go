package config

import (
	"errors"
	"fmt"
)

// Validate checks a loaded config for values that would misbehave at
// runtime. Called on startup and before every hot-reload swap.
func Validate(cfg *Config) error {
	var errs []error

	check := func(name string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative (got %d)", name, v))
		}
	}
	check("actors.person_idle_s", cfg.Actors.PersonIdleS)
	check("actors.gate_idle_s", cfg.Actors.GateIdleS)
	check("actors.acc_idle_s", cfg.Actors.AccIdleS)
	check("actors.unusual_open_s", cfg.Actors.UnusualOpenS)
	check("incidents.dedup_window_s", cfg.Incidents.DedupWindowS)
	check("incidents.escalation_after_s", cfg.Incidents.EscalationAfterS)
	check("incidents.sweep_interval_s", cfg.Incidents.SweepIntervalS)
	check("router.persist_workers", cfg.Router.PersistWorkers)
	check("router.queue_depth", cfg.Router.QueueDepth)

	// Idle eviction shorter than the gate watch threshold would evict the
	// actor before its own alarm can fire.
	if cfg.Actors.UnusualOpenS >= cfg.Actors.GateIdleS && cfg.Actors.GateIdleS > 0 {
		errs = append(errs, fmt.Errorf("actors.unusual_open_s (%d) must be below actors.gate_idle_s (%d)",
			cfg.Actors.UnusualOpenS, cfg.Actors.GateIdleS))
	}

	return errors.Join(errs...)
}

package config

import "time"

// Config is the top-level YAML structure. Timing knobs are plain integers
// (seconds) in the file; accessors convert to durations.
type Config struct {
	Actors    ActorConf    `yaml:"actors"`
	Incidents IncidentConf `yaml:"incidents"`
	Router    RouterConf   `yaml:"router"`
}

// ActorConf holds per-kind idle timeouts and the gate watch threshold.
type ActorConf struct {
	PersonIdleS      int `yaml:"person_idle_s"`
	GateIdleS        int `yaml:"gate_idle_s"`
	AccIdleS         int `yaml:"acc_idle_s"`
	UnusualOpenS     int `yaml:"unusual_open_s"`
	ShutdownTimeoutS int `yaml:"shutdown_timeout_s"`
}

// IncidentConf holds the dedup and escalation windows. Hot-reloadable.
type IncidentConf struct {
	DedupWindowS     int `yaml:"dedup_window_s"`
	EscalationAfterS int `yaml:"escalation_after_s"`
	SweepIntervalS   int `yaml:"sweep_interval_s"`
}

// RouterConf sizes the persistence worker pool.
type RouterConf struct {
	PersistWorkers int `yaml:"persist_workers"`
	QueueDepth     int `yaml:"queue_depth"`
}

func (a ActorConf) PersonIdle() time.Duration      { return time.Duration(a.PersonIdleS) * time.Second }
func (a ActorConf) GateIdle() time.Duration        { return time.Duration(a.GateIdleS) * time.Second }
func (a ActorConf) AccIdle() time.Duration         { return time.Duration(a.AccIdleS) * time.Second }
func (a ActorConf) UnusualOpen() time.Duration     { return time.Duration(a.UnusualOpenS) * time.Second }
func (a ActorConf) ShutdownTimeout() time.Duration {
	return time.Duration(a.ShutdownTimeoutS) * time.Second
}

func (i IncidentConf) DedupWindow() time.Duration {
	return time.Duration(i.DedupWindowS) * time.Second
}
func (i IncidentConf) EscalationAfter() time.Duration {
	return time.Duration(i.EscalationAfterS) * time.Second
}
func (i IncidentConf) SweepInterval() time.Duration {
	return time.Duration(i.SweepIntervalS) * time.Second
}

// Env holds deployment-level settings read from the environment.
type Env struct {
	Addr       string `env:"GATEWATCH_ADDR" envDefault:":8080"`
	ConfigPath string `env:"GATEWATCH_CONFIG" envDefault:"configs/gatewatch.yaml"`
	DBPath     string `env:"GATEWATCH_DB" envDefault:"gatewatch.db"`
	LogLevel   string `env:"GATEWATCH_LOG_LEVEL" envDefault:"info"`
}

// Package config handles loading, defaulting, and validation of the
// benchguard TOML configuration file. Every section maps to a typed struct
// so the rest of the codebase gets strong typing without manual key lookups.
// The defaults reproduce the X8 bench profile: three ten-minute stages at
// 10/20/40% duty with the matching rpm and current expectations.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/propdyn/benchguard/internal/stage"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Server  ServerConfig  `toml:"server"  json:"server"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Store   StoreConfig   `toml:"store"   json:"store"`
	Monitor MonitorConfig `toml:"monitor" json:"monitor"`
	Sim     SimConfig     `toml:"sim"     json:"sim"`
	Stages  []StageConfig `toml:"stages"  json:"stages"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

// StoreConfig describes the redis instance the rig bridge publishes into.
type StoreConfig struct {
	Addr        string `toml:"addr"          json:"addr"`
	Password    string `toml:"password"      json:"-"`
	DB          int    `toml:"db"            json:"db"`
	Namespace   string `toml:"namespace"     json:"namespace"`
	EnableParam string `toml:"enable_param"  json:"enable_param"`
	OpTimeoutMS int    `toml:"op_timeout_ms" json:"op_timeout_ms"`
}

// MonitorConfig carries the sampling cadence and every safety threshold.
// Thresholds are per-rig tuning knobs; the defaults match the original
// bench profile.
type MonitorConfig struct {
	TickSeconds        int     `toml:"tick_seconds"          json:"tick_seconds"`
	RampUpGraceSeconds int     `toml:"ramp_up_grace_seconds" json:"ramp_up_grace_seconds"`
	MaxOverrunSeconds  int     `toml:"max_overrun_seconds"   json:"max_overrun_seconds"`
	RPMNearZeroAbort   float64 `toml:"rpm_near_zero_abort"   json:"rpm_near_zero_abort"`
	TempCritAbort      float64 `toml:"temp_crit_abort"       json:"temp_crit_abort"`
	ESCCurrMaxAbort    float64 `toml:"esc_curr_max_abort"    json:"esc_curr_max_abort"`
	TotalCurrMaxAbort  float64 `toml:"total_curr_max_abort"  json:"total_curr_max_abort"`
	RPMWarnFrac        float64 `toml:"rpm_warn_frac"         json:"rpm_warn_frac"`
	RPMAbortFrac       float64 `toml:"rpm_abort_frac"        json:"rpm_abort_frac"`
	TempWarnDiff       float64 `toml:"temp_warn_diff"        json:"temp_warn_diff"`
	TempAbortDiff      float64 `toml:"temp_abort_diff"       json:"temp_abort_diff"`
	CurrWarnFrac       float64 `toml:"curr_warn_frac"        json:"curr_warn_frac"`
	CurrAbortFrac      float64 `toml:"curr_abort_frac"       json:"curr_abort_frac"`
}

// SimConfig enables the simulated rig so the daemon, CLI, and dashboard can
// be exercised end-to-end without hardware. Fault selects a scripted
// anomaly injected FaultAfterSeconds into the run.
type SimConfig struct {
	Enabled           bool   `toml:"enabled"             json:"enabled"`
	Fault             string `toml:"fault"               json:"fault"`
	FaultAfterSeconds int    `toml:"fault_after_seconds" json:"fault_after_seconds"`
}

// StageConfig is one [[stages]] block.
type StageConfig struct {
	Name                 string  `toml:"name"                   json:"name"`
	DurationSeconds      int     `toml:"duration_seconds"       json:"duration_seconds"`
	ExpectedRPM          float64 `toml:"expected_rpm"           json:"expected_rpm"`
	ExpectedESCCurrent   float64 `toml:"expected_esc_current"   json:"expected_esc_current"`
	ExpectedTotalCurrent float64 `toml:"expected_total_current" json:"expected_total_current"`
}

// Default returns a Config populated with the X8 bench profile. Values here
// are used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Addr:        "localhost:6379",
			DB:          0,
			Namespace:   "rig",
			EnableParam: "SCR_USER4",
			OpTimeoutMS: 2000,
		},
		Monitor: MonitorConfig{
			TickSeconds:        1,
			RampUpGraceSeconds: 5,
			MaxOverrunSeconds:  300,
			RPMNearZeroAbort:   500,
			TempCritAbort:      80,
			ESCCurrMaxAbort:    100,
			TotalCurrMaxAbort:  100,
			RPMWarnFrac:        0.10,
			RPMAbortFrac:       0.30,
			TempWarnDiff:       10,
			TempAbortDiff:      20,
			CurrWarnFrac:       0.10,
			CurrAbortFrac:      0.30,
		},
		Sim: SimConfig{
			Enabled:           false,
			Fault:             "",
			FaultAfterSeconds: 30,
		},
		Stages: []StageConfig{
			{Name: "Stage 1 (10%)", DurationSeconds: 600},
			{Name: "Stage 2 (20%)", DurationSeconds: 600, ExpectedRPM: 3500, ExpectedESCCurrent: 10, ExpectedTotalCurrent: 80},
			{Name: "Stage 3 (40%)", DurationSeconds: 600, ExpectedRPM: 7000, ExpectedESCCurrent: 20, ExpectedTotalCurrent: 160},
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated. A file that declares its own
// [[stages]] replaces the default stage table entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	// Peek for a stages table before unmarshalling: toml appends array
	// tables, so the defaults must be cleared when the file defines them.
	var probe struct {
		Stages []StageConfig `toml:"stages"`
	}
	if err := toml.Unmarshal(b, &probe); err != nil {
		return cfg, err
	}
	if len(probe.Stages) > 0 {
		cfg.Stages = nil
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks every constraint a running daemon depends on.
func Validate(cfg Config) error {
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Store.EnableParam == "" {
		return errors.New("store.enable_param must not be empty")
	}
	if !cfg.Sim.Enabled && cfg.Store.Addr == "" {
		return errors.New("store.addr must not be empty in live mode")
	}
	if cfg.Monitor.TickSeconds <= 0 {
		return errors.New("monitor.tick_seconds must be > 0")
	}
	if cfg.Monitor.RampUpGraceSeconds < 0 {
		return errors.New("monitor.ramp_up_grace_seconds must be >= 0")
	}
	if cfg.Monitor.MaxOverrunSeconds < 0 {
		return errors.New("monitor.max_overrun_seconds must be >= 0")
	}
	if cfg.Monitor.RPMWarnFrac <= 0 || cfg.Monitor.RPMAbortFrac <= cfg.Monitor.RPMWarnFrac {
		return errors.New("monitor rpm fractions must satisfy 0 < warn < abort")
	}
	if cfg.Monitor.CurrWarnFrac <= 0 || cfg.Monitor.CurrAbortFrac <= cfg.Monitor.CurrWarnFrac {
		return errors.New("monitor current fractions must satisfy 0 < warn < abort")
	}
	if cfg.Monitor.TempWarnDiff <= 0 || cfg.Monitor.TempAbortDiff <= cfg.Monitor.TempWarnDiff {
		return errors.New("monitor temp deviations must satisfy 0 < warn < abort")
	}
	if len(cfg.Stages) == 0 {
		return errors.New("at least one [[stages]] block is required")
	}
	for i, s := range cfg.Stages {
		if s.DurationSeconds <= 0 {
			return fmt.Errorf("stages[%d] (%s): duration_seconds must be > 0", i, s.Name)
		}
		if s.ExpectedRPM < 0 || s.ExpectedESCCurrent < 0 || s.ExpectedTotalCurrent < 0 {
			return fmt.Errorf("stages[%d] (%s): expectations must be >= 0", i, s.Name)
		}
	}
	switch cfg.Sim.Fault {
	case "", "stall", "overtemp", "overcurrent", "rpm_drift", "temp_spread":
	default:
		return fmt.Errorf("sim.fault %q is not a known fault", cfg.Sim.Fault)
	}
	return nil
}

// Plan converts the configured stage table into a validated stage.Plan.
func (c Config) Plan() (stage.Plan, error) {
	stages := make([]stage.Stage, len(c.Stages))
	for i, s := range c.Stages {
		stages[i] = stage.Stage{
			Name:                 s.Name,
			Duration:             time.Duration(s.DurationSeconds) * time.Second,
			ExpectedRPM:          s.ExpectedRPM,
			ExpectedESCCurrent:   s.ExpectedESCCurrent,
			ExpectedTotalCurrent: s.ExpectedTotalCurrent,
		}
	}
	return stage.NewPlan(stages)
}

// OpTimeout returns the store operation timeout as a duration.
func (s StoreConfig) OpTimeout() time.Duration {
	return time.Duration(s.OpTimeoutMS) * time.Millisecond
}

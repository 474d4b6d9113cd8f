package ctl

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	// Decode into a generic map to preserve all fields for both display modes.
	var raw json.RawMessage
	if err := getJSON(baseURL, "/api/config", &raw); err != nil {
		return err
	}

	if jsonOutput {
		var v any
		_ = json.Unmarshal(raw, &v)
		return printJSON(v)
	}

	// Decode into ordered sections for human-readable output.
	var cfg struct {
		Server struct {
			Bind string `json:"bind"`
		} `json:"server"`
		Logging struct {
			Level string `json:"level"`
		} `json:"logging"`
		Store struct {
			Addr        string `json:"addr"`
			DB          int    `json:"db"`
			Namespace   string `json:"namespace"`
			EnableParam string `json:"enable_param"`
			OpTimeoutMS int    `json:"op_timeout_ms"`
		} `json:"store"`
		Monitor struct {
			TickSeconds        int     `json:"tick_seconds"`
			RampUpGraceSeconds int     `json:"ramp_up_grace_seconds"`
			MaxOverrunSeconds  int     `json:"max_overrun_seconds"`
			RPMNearZeroAbort   float64 `json:"rpm_near_zero_abort"`
			TempCritAbort      float64 `json:"temp_crit_abort"`
			ESCCurrMaxAbort    float64 `json:"esc_curr_max_abort"`
			TotalCurrMaxAbort  float64 `json:"total_curr_max_abort"`
			RPMWarnFrac        float64 `json:"rpm_warn_frac"`
			RPMAbortFrac       float64 `json:"rpm_abort_frac"`
			TempWarnDiff       float64 `json:"temp_warn_diff"`
			TempAbortDiff      float64 `json:"temp_abort_diff"`
			CurrWarnFrac       float64 `json:"curr_warn_frac"`
			CurrAbortFrac      float64 `json:"curr_abort_frac"`
		} `json:"monitor"`
		Sim struct {
			Enabled           bool   `json:"enabled"`
			Fault             string `json:"fault"`
			FaultAfterSeconds int    `json:"fault_after_seconds"`
		} `json:"sim"`
		Stages []struct {
			Name string `json:"name"`
		} `json:"stages"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(header("  DAEMON CONFIGURATION"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))

	section := func(name string) {
		fmt.Printf("\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Printf("    %-22s %v\n", colorize(dim, key+":"), val)
	}

	section("server")
	field("bind", cfg.Server.Bind)

	section("logging")
	field("level", cfg.Logging.Level)

	section("store")
	field("addr", cfg.Store.Addr)
	field("db", cfg.Store.DB)
	field("namespace", cfg.Store.Namespace)
	field("enable_param", cfg.Store.EnableParam)
	field("op_timeout_ms", cfg.Store.OpTimeoutMS)

	section("monitor")
	field("tick_seconds", cfg.Monitor.TickSeconds)
	field("ramp_up_grace_seconds", cfg.Monitor.RampUpGraceSeconds)
	field("max_overrun_seconds", cfg.Monitor.MaxOverrunSeconds)
	field("rpm_near_zero_abort", cfg.Monitor.RPMNearZeroAbort)
	field("temp_crit_abort", cfg.Monitor.TempCritAbort)
	field("esc_curr_max_abort", cfg.Monitor.ESCCurrMaxAbort)
	field("total_curr_max_abort", cfg.Monitor.TotalCurrMaxAbort)
	field("rpm_warn_frac", cfg.Monitor.RPMWarnFrac)
	field("rpm_abort_frac", cfg.Monitor.RPMAbortFrac)
	field("temp_warn_diff", cfg.Monitor.TempWarnDiff)
	field("temp_abort_diff", cfg.Monitor.TempAbortDiff)
	field("curr_warn_frac", cfg.Monitor.CurrWarnFrac)
	field("curr_abort_frac", cfg.Monitor.CurrAbortFrac)

	section("sim")
	field("enabled", cfg.Sim.Enabled)
	field("fault", cfg.Sim.Fault)
	field("fault_after_seconds", cfg.Sim.FaultAfterSeconds)

	names := make([]string, len(cfg.Stages))
	for i, s := range cfg.Stages {
		names[i] = s.Name
	}
	section("stages")
	field("count", len(cfg.Stages))
	field("names", strings.Join(names, ", "))

	fmt.Println()

	return nil
}

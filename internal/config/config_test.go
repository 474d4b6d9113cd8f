package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benchguard.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "SCR_USER4", cfg.Store.EnableParam)
	assert.Equal(t, 1, cfg.Monitor.TickSeconds)
	assert.Len(t, cfg.Stages, 3)

	plan, err := cfg.Plan()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, plan.Total())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
bind = "127.0.0.1:9090"

[logging]
level = "debug"

[store]
addr = "redis.rig.local:6379"
namespace = "bench"
enable_param = "SCR_USER3"

[monitor]
tick_seconds = 2
temp_crit_abort = 75.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Bind)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis.rig.local:6379", cfg.Store.Addr)
	assert.Equal(t, "SCR_USER3", cfg.Store.EnableParam)
	assert.Equal(t, 2, cfg.Monitor.TickSeconds)
	assert.InDelta(t, 75.0, cfg.Monitor.TempCritAbort, 0.001)

	// Untouched sections keep their defaults.
	assert.InDelta(t, 500.0, cfg.Monitor.RPMNearZeroAbort, 0.001)
	assert.Len(t, cfg.Stages, 3)
}

func TestLoadStagesReplaceDefaults(t *testing.T) {
	path := writeConfig(t, `
[[stages]]
name = "hover"
duration_seconds = 120
expected_rpm = 2400.0

[[stages]]
name = "climb"
duration_seconds = 60
expected_rpm = 5200.0
expected_esc_current = 15.0
expected_total_current = 120.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, "hover", cfg.Stages[0].Name)
	assert.Equal(t, "climb", cfg.Stages[1].Name)

	plan, err := cfg.Plan()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, plan.Total())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := writeConfig(t, `[server
bind = `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty bind", func(c *Config) { c.Server.Bind = "" }},
		{"empty enable param", func(c *Config) { c.Store.EnableParam = "" }},
		{"no store addr in live mode", func(c *Config) { c.Store.Addr = "" }},
		{"zero tick", func(c *Config) { c.Monitor.TickSeconds = 0 }},
		{"warn above abort", func(c *Config) { c.Monitor.RPMWarnFrac = 0.5 }},
		{"temp warn above abort", func(c *Config) { c.Monitor.TempWarnDiff = 30 }},
		{"no stages", func(c *Config) { c.Stages = nil }},
		{"zero stage duration", func(c *Config) { c.Stages[0].DurationSeconds = 0 }},
		{"negative expectation", func(c *Config) { c.Stages[1].ExpectedRPM = -1 }},
		{"unknown fault", func(c *Config) { c.Sim.Fault = "explode" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateAllowsSimWithoutAddr(t *testing.T) {
	cfg := Default()
	cfg.Store.Addr = ""
	cfg.Sim.Enabled = true
	assert.NoError(t, Validate(cfg))
}

func TestValidateKnownFaults(t *testing.T) {
	for _, fault := range []string{"", "stall", "overtemp", "overcurrent", "rpm_drift", "temp_spread"} {
		cfg := Default()
		cfg.Sim.Fault = fault
		assert.NoError(t, Validate(cfg), "fault %q", fault)
	}
}

func TestOpTimeout(t *testing.T) {
	s := StoreConfig{OpTimeoutMS: 2000}
	assert.Equal(t, 2*time.Second, s.OpTimeout())
}

// Package events defines the typed event structs that flow over the
// WebSocket connection between benchd and its clients. These types serve as
// documentation for the event schema; several internal components still
// broadcast events as map[string]any for flexibility.
package events

import (
	"time"

	"github.com/propdyn/benchguard/internal/telemetry"
)

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventTick      EventType = "tick"
	EventFinding   EventType = "finding"
	EventLog       EventType = "log"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching
// the timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StateTransition is emitted whenever the monitor moves between operating
// states (e.g. RUNNING -> ABORTED).
type StateTransition struct {
	Event
	From  string `json:"from"`
	To    string `json:"to"`
	RunID string `json:"run_id,omitempty"`
}

// Tick carries one full telemetry snapshot with its stage context, emitted
// once per sampling interval while a test runs.
type Tick struct {
	Event
	RunID          string           `json:"run_id"`
	Tick           int              `json:"tick"`
	ElapsedSeconds int              `json:"elapsed_s"`
	Stage          string           `json:"stage"`
	StageIndex     int              `json:"stage_index"`
	InStageSeconds int              `json:"in_stage_s"`
	Sample         telemetry.Sample `json:"sample"`
}

// Finding reports one anomaly check result at warning or abort severity,
// with the measured and expected values so a reviewer can reconstruct the
// decision from the stream alone.
type Finding struct {
	Event
	RunID     string  `json:"run_id"`
	Tick      int     `json:"tick"`
	Severity  string  `json:"severity"`
	Subject   string  `json:"subject"`
	Message   string  `json:"message"`
	Measured  float64 `json:"measured"`
	Expected  float64 `json:"expected"`
	Deviation float64 `json:"deviation"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

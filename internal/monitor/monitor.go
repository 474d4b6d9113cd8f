// Package monitor owns the staged-test safety loop: once per tick it reads
// a telemetry snapshot, resolves the active stage, evaluates the anomaly
// checks, and either continues, ends the run, or clears the remote enable
// flag to force a stop. It is the only component with decision logic;
// everything around it is plumbing.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/propdyn/benchguard/internal/events"
	"github.com/propdyn/benchguard/internal/stage"
	"github.com/propdyn/benchguard/internal/store"
	"github.com/propdyn/benchguard/internal/telemetry"
	"github.com/propdyn/benchguard/internal/ws"
)

// Monitor states. IDLE waits for an operator start; RUNNING ticks; the rest
// are terminal outcomes of a run. COMPLETED is special: the loop keeps
// monitoring in that state until a stop, an abort, or the overrun limit.
const (
	StateIdle            = "IDLE"
	StateRunning         = "RUNNING"
	StateCompleted       = "COMPLETED"
	StateOperatorStopped = "OPERATOR_STOPPED"
	StateAborted         = "ABORTED"
	StateLinkLost        = "LINK_LOST"
)

// StopOutcome is the result of the stop protocol.
type StopOutcome int

const (
	Stopped StopOutcome = iota
	StopFailed
)

func (o StopOutcome) String() string {
	if o == Stopped {
		return "stopped"
	}
	return "stop_failed"
}

// Command represents an external command sent to the monitor via its
// Commands channel. The Reply channel receives exactly one result.
type Command struct {
	Type  string
	Reply chan<- CommandResult
}

// CommandResult is the response sent back through a Command's Reply channel.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// Status is a point-in-time view of the monitor, served by /api/status.
type Status struct {
	State          string `json:"state"`
	RunID          string `json:"run_id,omitempty"`
	Tick           int    `json:"tick"`
	ElapsedSeconds int    `json:"elapsed_s"`
	StageIndex     int    `json:"stage_index"`
	StageName      string `json:"stage,omitempty"`
	InStageSeconds int    `json:"in_stage_s"`
	LastSample     string `json:"last_sample,omitempty"`
	Enabled        bool   `json:"enabled"`
	StopFailure    bool   `json:"stop_failure"`
	Outcome        string `json:"outcome,omitempty"`
}

// Options holds everything the Monitor needs from the caller.
type Options struct {
	Hub         *ws.Hub
	Store       store.Store
	Plan        stage.Plan
	Limits      Limits
	Log         *logrus.Logger
	EnableParam string
	Tick        time.Duration
	MaxOverrun  time.Duration
}

// Monitor runs the per-tick read -> resolve -> evaluate -> act sequence for
// one test at a time. A single goroutine owns the cadence; all external
// interaction goes through the Commands channel or the read-only Current().
type Monitor struct {
	hub         *ws.Hub
	st          store.Store
	plan        stage.Plan
	eval        *Evaluator
	reader      *telemetry.Reader
	log         *logrus.Logger
	enableParam string
	tick        time.Duration
	maxOverrun  time.Duration

	// Commands receives start/stop requests from the HTTP handlers.
	Commands chan Command

	findingCallback func(events.Finding)

	mu     sync.Mutex
	status Status
}

// New creates a Monitor in the IDLE state. Call Run to start serving
// commands.
func New(opts Options) *Monitor {
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	return &Monitor{
		hub:         opts.Hub,
		st:          opts.Store,
		plan:        opts.Plan,
		eval:        NewEvaluator(opts.Limits),
		reader:      telemetry.NewReader(opts.Store),
		log:         opts.Log,
		enableParam: opts.EnableParam,
		tick:        tick,
		maxOverrun:  opts.MaxOverrun,
		Commands:    make(chan Command, 4),
		status:      Status{State: StateIdle},
	}
}

// SetFindingCallback registers a function called for every finding, after
// it has been logged and broadcast.
func (m *Monitor) SetFindingCallback(fn func(events.Finding)) {
	m.findingCallback = fn
}

// Current returns a copy of the monitor status.
func (m *Monitor) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Run is the monitor's main loop: wait for a start command, execute the
// run to its terminal state, repeat. It returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, setState func(string)) {
	m.transition(StateIdle, setState)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.Commands:
			switch cmd.Type {
			case "start":
				m.startRun(ctx, cmd, setState)
			case "stop":
				m.stopWhileIdle(ctx, cmd)
			default:
				cmd.Reply <- CommandResult{OK: false, Error: "unknown command: " + cmd.Type}
			}
		}
	}
}

// startRun enables the test and drives the tick loop until a terminal
// state. The enclosing Run loop regains control afterwards, so a new test
// can be started without restarting the daemon.
func (m *Monitor) startRun(ctx context.Context, cmd Command, setState func(string)) {
	if err := m.st.WriteFlag(ctx, m.enableParam, 1); err != nil {
		cmd.Reply <- CommandResult{OK: false, Error: fmt.Sprintf("cannot set %s to 1: %v", m.enableParam, err)}
		return
	}

	runID := uuid.NewString()
	plannedMin := int(m.plan.Total().Minutes())

	m.mu.Lock()
	m.status = Status{State: StateRunning, RunID: runID, Enabled: true, StageName: m.plan.Stage(0).Name}
	m.mu.Unlock()

	cmd.Reply <- CommandResult{
		OK:      true,
		RunID:   runID,
		Message: fmt.Sprintf("test started, planned duration ~%d minutes", plannedMin),
	}

	m.transition(StateRunning, setState)
	m.broadcastLog("info", fmt.Sprintf("%s=1 (test requested), planned duration ~%d minutes", m.enableParam, plannedMin))
	m.broadcastLog("info", fmt.Sprintf("to stop: benchctl stop, clear %s, or wait for an anomaly abort", m.enableParam))

	terminal, reason := m.loop(ctx, runID, setState)

	m.finalize(ctx)

	m.mu.Lock()
	m.status.State = terminal
	m.status.Outcome = reason
	m.mu.Unlock()
	// COMPLETED was already announced mid-loop; the app layer ignores
	// same-state transitions, so this is safe either way.
	setState(terminal)
	m.broadcastLog("info", fmt.Sprintf("run %s ended (%s): %s", runID, terminal, reason))
}

// stopWhileIdle mirrors the bench script's quick-toggle branch: no run is
// active, but the enable flag may have been left set, so clear it.
func (m *Monitor) stopWhileIdle(ctx context.Context, cmd Command) {
	v, err := m.st.ReadFlag(ctx, m.enableParam)
	if err == nil && v >= 0.5 {
		if werr := m.st.WriteFlag(ctx, m.enableParam, 0); werr != nil {
			cmd.Reply <- CommandResult{OK: false, Error: fmt.Sprintf("cannot set %s to 0: %v", m.enableParam, werr)}
			return
		}
		cmd.Reply <- CommandResult{OK: true, Message: m.enableParam + " was non-zero, set to 0"}
		return
	}
	cmd.Reply <- CommandResult{OK: true, Message: "no test running"}
}

// loop executes ticks until the run reaches a terminal state. It returns
// the terminal state and a human-readable reason. Cancellation is checked
// before every read and during the end-of-tick sleep; a cancelled loop
// never performs another round of checks.
func (m *Monitor) loop(ctx context.Context, runID string, setState func(string)) (string, string) {
	completed := false

	for tick := 0; ; tick++ {
		if ctx.Err() != nil {
			return StateOperatorStopped, "daemon shutdown"
		}

		elapsed := time.Duration(tick) * m.tick
		idx, inStage := m.plan.ResolveAt(elapsed)
		st := m.plan.Stage(idx)

		sample, err := m.reader.Snapshot(ctx)
		if err != nil {
			m.broadcastLog("error", "telemetry store unreachable: "+err.Error())
			return StateLinkLost, "telemetry store unreachable"
		}

		publishSample(sample)
		line := statusLine(int(elapsed.Seconds()), st.Name, int(inStage.Seconds()), sample)
		m.mu.Lock()
		m.status.Tick = tick
		m.status.ElapsedSeconds = int(elapsed.Seconds())
		m.status.StageIndex = idx
		m.status.StageName = st.Name
		m.status.InStageSeconds = int(inStage.Seconds())
		m.status.LastSample = line
		m.mu.Unlock()

		m.hub.BroadcastJSON(events.Tick{
			Event:          events.Event{Type: events.EventTick, TS: events.NowTS()},
			RunID:          runID,
			Tick:           tick,
			ElapsedSeconds: int(elapsed.Seconds()),
			Stage:          st.Name,
			StageIndex:     idx,
			InStageSeconds: int(inStage.Seconds()),
			Sample:         sample,
		})
		m.log.Info(line)

		findings := m.eval.Evaluate(sample, st, inStage)
		for _, f := range findings {
			m.emitFinding(runID, tick, f)
		}
		if f, ok := HasAbort(findings); ok {
			outcome := m.RequestStop(ctx, f.Message)
			reason := f.Message
			if outcome == StopFailed {
				reason += " (stop request NOT acknowledged)"
			}
			return StateAborted, reason
		}

		if !completed && elapsed >= m.plan.Total() {
			completed = true
			m.transition(StateCompleted, setState)
			m.broadcastLog("info", "planned test duration reached, continuing to monitor")
		}
		if completed && m.maxOverrun > 0 && elapsed >= m.plan.Total()+m.maxOverrun {
			return StateCompleted, fmt.Sprintf("overrun limit reached at t=%ds", int(elapsed.Seconds()))
		}

		// The enable flag may have been cleared externally (operator or
		// the rig-side script); honor it before sleeping.
		v, err := m.st.ReadFlag(ctx, m.enableParam)
		if err != nil {
			m.broadcastLog("error", fmt.Sprintf("cannot read %s: %v", m.enableParam, err))
			return StateLinkLost, "cannot read " + m.enableParam
		}
		m.mu.Lock()
		m.status.Enabled = v >= 0.5
		m.mu.Unlock()
		if v < 0.5 {
			if completed {
				return StateCompleted, fmt.Sprintf("enable flag cleared at t=%ds", int(elapsed.Seconds()))
			}
			return StateOperatorStopped, fmt.Sprintf("%s is 0, stopping at t=%ds", m.enableParam, int(elapsed.Seconds()))
		}

		switch m.sleepOrCommand(ctx) {
		case sleepCancelled:
			return StateOperatorStopped, "daemon shutdown"
		case sleepStopRequested:
			return StateOperatorStopped, "stop requested by operator"
		}
	}
}

// RequestStop is the stop protocol: write the enable flag to 0 and verify
// the readback. It never retries within a tick; a failure is latched and
// escalated so a human can reach for the physical kill switch. Disabling
// an already-disabled flag succeeds (the write is idempotent).
func (m *Monitor) RequestStop(ctx context.Context, reason string) StopOutcome {
	m.broadcastLog("error", "ABORT: "+reason)

	if err := m.st.WriteFlag(ctx, m.enableParam, 0); err != nil {
		m.stopFailed(err.Error())
		return StopFailed
	}
	v, err := m.st.ReadFlag(ctx, m.enableParam)
	if err != nil {
		m.stopFailed("readback failed: " + err.Error())
		return StopFailed
	}
	if v >= 0.5 {
		m.stopFailed("flag readback still enabled")
		return StopFailed
	}

	m.broadcastLog("info", m.enableParam+" set to 0 (test stop requested)")
	m.mu.Lock()
	m.status.StopFailure = false
	m.status.Enabled = false
	m.mu.Unlock()
	return Stopped
}

// stopFailed latches the stop failure and escalates it. The latch is only
// cleared by a later successful disable, never by an anomaly-free tick.
func (m *Monitor) stopFailed(detail string) {
	stopFailuresTotal.Inc()
	m.mu.Lock()
	m.status.StopFailure = true
	m.mu.Unlock()
	m.broadcastLog("error", fmt.Sprintf(
		"cannot set %s to 0 (%s), motors may still be driven, use the physical kill switch", m.enableParam, detail))
}

// finalize makes the best-effort final attempt to leave the enable flag
// disabled, with at most one automatic retry. Idempotent with RequestStop.
func (m *Monitor) finalize(ctx context.Context) {
	v, err := m.st.ReadFlag(ctx, m.enableParam)
	if err == nil && v < 0.5 {
		m.broadcastLog("info", "test ended: "+m.enableParam+" was already 0")
		m.mu.Lock()
		m.status.Enabled = false
		m.mu.Unlock()
		return
	}

	werr := m.st.WriteFlag(ctx, m.enableParam, 0)
	if werr != nil {
		werr = m.st.WriteFlag(ctx, m.enableParam, 0)
	}
	if werr != nil {
		m.stopFailed(werr.Error())
		return
	}

	m.broadcastLog("info", "test ended: "+m.enableParam+" set to 0")
	m.mu.Lock()
	m.status.Enabled = false
	m.status.StopFailure = false
	m.mu.Unlock()
}

// sleepResult indicates what ended the end-of-tick sleep.
type sleepResult int

const (
	sleepCompleted     sleepResult = iota // timer expired normally
	sleepCancelled                        // context was cancelled
	sleepStopRequested                    // a stop command arrived
)

// sleepOrCommand waits out one tick interval, handling commands inline.
// A start command during a run is rejected without ending the sleep.
func (m *Monitor) sleepOrCommand(ctx context.Context) sleepResult {
	t := time.NewTimer(m.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return sleepCancelled
		case <-t.C:
			return sleepCompleted
		case cmd := <-m.Commands:
			switch cmd.Type {
			case "stop":
				cmd.Reply <- CommandResult{OK: true, Message: "stop requested"}
				return sleepStopRequested
			case "start":
				cmd.Reply <- CommandResult{OK: false, Error: "a test is already running"}
			default:
				cmd.Reply <- CommandResult{OK: false, Error: "unknown command: " + cmd.Type}
			}
		}
	}
}

func (m *Monitor) emitFinding(runID string, tick int, f Finding) {
	if f.Severity == SeverityAbort {
		m.log.Errorf("ABORT: %s", f.Message)
	} else {
		m.log.Warnf("WARN: %s", f.Message)
	}
	findingsTotal.WithLabelValues(string(f.Severity)).Inc()

	ev := events.Finding{
		Event:     events.Event{Type: events.EventFinding, TS: events.NowTS()},
		RunID:     runID,
		Tick:      tick,
		Severity:  string(f.Severity),
		Subject:   f.Subject,
		Message:   f.Message,
		Measured:  f.Measured,
		Expected:  f.Expected,
		Deviation: f.Deviation,
	}
	m.hub.BroadcastJSON(ev)
	if m.findingCallback != nil {
		m.findingCallback(ev)
	}
}

func (m *Monitor) transition(state string, setState func(string)) {
	m.mu.Lock()
	m.status.State = state
	m.mu.Unlock()
	if setState != nil {
		setState(state)
	}
}

func (m *Monitor) broadcastLog(level, message string) {
	switch level {
	case "error":
		m.log.Error(message)
	case "warn":
		m.log.Warn(message)
	default:
		m.log.Info(message)
	}
	m.hub.BroadcastJSON(map[string]any{
		"type":      "log",
		"ts":        events.NowTS(),
		"level":     level,
		"message":   message,
		"component": "monitor",
	})
}

// statusLine renders one compact console line per tick with stage context,
// per-ESC readings, and bench totals. Unmeasured channels print as 0.
func statusLine(tSec int, stageName string, inStageSec int, s telemetry.Sample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%4ds [%s t=%3ds] ", tSec, stageName, inStageSec)
	for i := 0; i < telemetry.NumESC; i++ {
		fmt.Fprintf(&b, "E%d:%4drpm/%4.1fA/%4.1fC ",
			i+1, int(s.ESCRPM[i].Val), s.ESCCurrent[i].Val, s.ESCTemp[i].Val)
	}
	fmt.Fprintf(&b, "| I_tot=%.1fA V=%.1fV | LC:", s.TotalCurrent.Val, s.TotalVoltage.Val)
	for i := 0; i < telemetry.NumLoadCell; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " L%d=%.1f", i+1, s.LoadCell[i].Val)
	}
	return b.String()
}

package monitor

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdyn/benchguard/internal/events"
	"github.com/propdyn/benchguard/internal/stage"
	"github.com/propdyn/benchguard/internal/store"
	"github.com/propdyn/benchguard/internal/telemetry"
	"github.com/propdyn/benchguard/internal/ws"
)

const testEnableParam = "SCR_USER4"

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// populateHealthy fills the store with readings that pass every check.
func populateHealthy(m *store.Memory) {
	for i := 0; i < telemetry.NumESC; i++ {
		m.SetChannel(telemetry.ESCChannel(i, "rpm"), 3500)
		m.SetChannel(telemetry.ESCChannel(i, "curr"), 10)
		m.SetChannel(telemetry.ESCChannel(i, "temp"), 45)
	}
	for i := 0; i < telemetry.NumLoadCell; i++ {
		m.SetChannel(telemetry.LoadCellChannel(i), 14)
	}
	m.SetChannel(telemetry.TotalCurrentChannel(), 80)
	m.SetChannel(telemetry.TotalVoltageChannel(), 49.5)
}

func testPlan(t *testing.T, total time.Duration) stage.Plan {
	t.Helper()
	p, err := stage.NewPlan([]stage.Stage{{Name: "hover", Duration: total}})
	require.NoError(t, err)
	return p
}

func newTestMonitor(t *testing.T, st *store.Memory, planTotal, maxOverrun time.Duration) *Monitor {
	t.Helper()
	return New(Options{
		Hub:         ws.NewHub(),
		Store:       st,
		Plan:        testPlan(t, planTotal),
		Limits:      DefaultLimits(),
		Log:         quietLogger(),
		EnableParam: testEnableParam,
		Tick:        5 * time.Millisecond,
		MaxOverrun:  maxOverrun,
	})
}

// startMonitor runs the command loop in the background and issues a start
// command, failing the test if the daemon refuses it.
func startMonitor(t *testing.T, m *Monitor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx, func(string) {})

	reply := make(chan CommandResult, 1)
	m.Commands <- Command{Type: "start", Reply: reply}
	res := <-reply
	require.True(t, res.OK, "start refused: %s", res.Error)
	require.NotEmpty(t, res.RunID)
	return cancel
}

func waitForState(t *testing.T, m *Monitor, state string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return m.Current().State == state
	}, 2*time.Second, 5*time.Millisecond, "never reached %s, last state %s", state, m.Current().State)
}

func TestRequestStopDisablesFlag(t *testing.T) {
	st := store.NewMemory()
	st.SetFlag(testEnableParam, 1)
	m := newTestMonitor(t, st, time.Hour, 0)

	outcome := m.RequestStop(context.Background(), "test")
	assert.Equal(t, Stopped, outcome)

	v, ok := st.Flag(testEnableParam)
	require.True(t, ok)
	assert.InDelta(t, 0, v, 0.001)
	assert.False(t, m.Current().StopFailure)
}

func TestRequestStopIdempotent(t *testing.T) {
	st := store.NewMemory()
	st.SetFlag(testEnableParam, 0)
	m := newTestMonitor(t, st, time.Hour, 0)

	assert.Equal(t, Stopped, m.RequestStop(context.Background(), "first"))
	assert.Equal(t, Stopped, m.RequestStop(context.Background(), "second"))
}

func TestRequestStopFailureLatches(t *testing.T) {
	st := store.NewMemory()
	st.SetFlag(testEnableParam, 1)
	st.SetFailWrites(true)
	m := newTestMonitor(t, st, time.Hour, 0)

	assert.Equal(t, StopFailed, m.RequestStop(context.Background(), "test"))
	assert.True(t, m.Current().StopFailure)

	// The latch survives until a disable actually succeeds.
	assert.Equal(t, StopFailed, m.RequestStop(context.Background(), "again"))
	assert.True(t, m.Current().StopFailure)

	st.SetFailWrites(false)
	assert.Equal(t, Stopped, m.RequestStop(context.Background(), "retry"))
	assert.False(t, m.Current().StopFailure)
}

func TestRunOperatorStopCommand(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	m := newTestMonitor(t, st, time.Hour, 0)
	cancel := startMonitor(t, m)
	defer cancel()

	waitForState(t, m, StateRunning)

	reply := make(chan CommandResult, 1)
	m.Commands <- Command{Type: "stop", Reply: reply}
	res := <-reply
	assert.True(t, res.OK)

	waitForState(t, m, StateOperatorStopped)
	v, _ := st.Flag(testEnableParam)
	assert.InDelta(t, 0, v, 0.001)
}

func TestRunStopWhenFlagClearedExternally(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	m := newTestMonitor(t, st, time.Hour, 0)
	cancel := startMonitor(t, m)
	defer cancel()

	waitForState(t, m, StateRunning)
	st.SetFlag(testEnableParam, 0)

	waitForState(t, m, StateOperatorStopped)
	assert.Contains(t, m.Current().Outcome, testEnableParam)
}

func TestRunAbortsOnCriticalTemp(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	st.SetChannel(telemetry.ESCChannel(4, "temp"), 92)
	m := newTestMonitor(t, st, time.Hour, 0)
	cancel := startMonitor(t, m)
	defer cancel()

	waitForState(t, m, StateAborted)
	assert.Contains(t, m.Current().Outcome, "over temperature")

	v, _ := st.Flag(testEnableParam)
	assert.InDelta(t, 0, v, 0.001)
	assert.False(t, m.Current().StopFailure)
}

func TestRunLinkLost(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	m := newTestMonitor(t, st, time.Hour, 0)
	cancel := startMonitor(t, m)
	defer cancel()

	waitForState(t, m, StateRunning)
	st.SetOffline(true)

	waitForState(t, m, StateLinkLost)
	// The best-effort disable cannot reach the store either, so the stop
	// failure is latched for the operator to see.
	assert.True(t, m.Current().StopFailure)
}

func TestRunCompletesAndStopsAfterOverrun(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	m := newTestMonitor(t, st, 25*time.Millisecond, 25*time.Millisecond)
	cancel := startMonitor(t, m)
	defer cancel()

	waitForState(t, m, StateCompleted)
	assert.Eventually(t, func() bool {
		return strings.Contains(m.Current().Outcome, "overrun")
	}, 2*time.Second, 5*time.Millisecond)

	v, _ := st.Flag(testEnableParam)
	assert.InDelta(t, 0, v, 0.001)
}

func TestStartRejectedWhileRunning(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	m := newTestMonitor(t, st, time.Hour, 0)
	cancel := startMonitor(t, m)
	defer cancel()

	waitForState(t, m, StateRunning)

	reply := make(chan CommandResult, 1)
	m.Commands <- Command{Type: "start", Reply: reply}
	res := <-reply
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "already running")
}

func TestStopWhileIdle(t *testing.T) {
	st := store.NewMemory()
	st.SetFlag(testEnableParam, 1)
	m := newTestMonitor(t, st, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, func(string) {})

	// Flag was left set from a previous session: stop clears it.
	reply := make(chan CommandResult, 1)
	m.Commands <- Command{Type: "stop", Reply: reply}
	res := <-reply
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "set to 0")
	v, _ := st.Flag(testEnableParam)
	assert.InDelta(t, 0, v, 0.001)

	// Flag already clear: stop is a no-op.
	reply = make(chan CommandResult, 1)
	m.Commands <- Command{Type: "stop", Reply: reply}
	res = <-reply
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "no test running")
}

func TestStartFailsWhenFlagWriteFails(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	st.SetFailWrites(true)
	m := newTestMonitor(t, st, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, func(string) {})

	reply := make(chan CommandResult, 1)
	m.Commands <- Command{Type: "start", Reply: reply}
	res := <-reply
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, testEnableParam)
	assert.Equal(t, StateIdle, m.Current().State)
}

func TestFindingCallbackReceivesAbort(t *testing.T) {
	st := store.NewMemory()
	populateHealthy(st)
	st.SetChannel(telemetry.ESCChannel(0, "curr"), 130)
	m := newTestMonitor(t, st, time.Hour, 0)

	got := make(chan string, 8)
	m.SetFindingCallback(func(f events.Finding) {
		select {
		case got <- f.Severity:
		default:
		}
	})

	cancel := startMonitor(t, m)
	defer cancel()

	waitForState(t, m, StateAborted)
	select {
	case sev := <-got:
		assert.Equal(t, "ABORT", sev)
	case <-time.After(2 * time.Second):
		t.Fatal("finding callback never fired")
	}
}

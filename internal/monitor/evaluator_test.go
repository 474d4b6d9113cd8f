package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdyn/benchguard/internal/stage"
	"github.com/propdyn/benchguard/internal/telemetry"
)

// healthySample builds a snapshot that passes every check against stageTwo.
func healthySample() telemetry.Sample {
	var s telemetry.Sample
	for i := 0; i < telemetry.NumESC; i++ {
		s.ESCRPM[i] = telemetry.Measure(3500)
		s.ESCCurrent[i] = telemetry.Measure(10)
		s.ESCTemp[i] = telemetry.Measure(45)
	}
	for i := 0; i < telemetry.NumLoadCell; i++ {
		s.LoadCell[i] = telemetry.Measure(14)
	}
	s.TotalCurrent = telemetry.Measure(80)
	s.TotalVoltage = telemetry.Measure(49.5)
	return s
}

func stageTwo() stage.Stage {
	return stage.Stage{
		Name:                 "Stage 2 (20%)",
		Duration:             600 * time.Second,
		ExpectedRPM:          3500,
		ExpectedESCCurrent:   10,
		ExpectedTotalCurrent: 80,
	}
}

// afterGrace is an in-stage time safely past the ramp-up grace window.
const afterGrace = 60 * time.Second

func TestEvaluateHealthySample(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	findings := e.Evaluate(healthySample(), stageTwo(), afterGrace)
	assert.Empty(t, findings)
}

func TestEvaluateRPMWarning(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCRPM[2] = telemetry.Measure(3850) // exactly 10% over, warn band is inclusive

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Equal(t, "esc3", findings[0].Subject)
	_, aborted := HasAbort(findings)
	assert.False(t, aborted)
}

func TestEvaluateRPMAbort(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCRPM[0] = telemetry.Measure(4600) // 31.4% over

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	require.Len(t, findings, 1)
	f, aborted := HasAbort(findings)
	require.True(t, aborted)
	assert.Equal(t, "esc1", f.Subject)
	assert.InDelta(t, 4600, f.Measured, 0.001)
}

func TestEvaluateZeroRPMIsNoData(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCRPM[4] = telemetry.Measure(0)

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	assert.Empty(t, findings)
}

func TestEvaluateUnmeasuredChannelsSkipped(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCRPM[1] = telemetry.Value{}
	s.ESCTemp[1] = telemetry.Value{}
	s.ESCCurrent[1] = telemetry.Value{}

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	assert.Empty(t, findings)
}

func TestEvaluateNearZeroRPMAbort(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCRPM[3] = telemetry.Measure(300)

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	require.Len(t, findings, 1)
	f, aborted := HasAbort(findings)
	require.True(t, aborted)
	assert.Equal(t, "esc4", f.Subject)
	assert.Contains(t, f.Message, "low rpm")
}

func TestEvaluateNearZeroSuppressedDuringGrace(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCRPM[3] = telemetry.Measure(300)

	// Inside the ramp-up window the stall check must not fire. The rpm
	// expectation check is gated too, so only steady-state checks remain.
	findings := e.Evaluate(s, stageTwo(), 2*time.Second)
	assert.Empty(t, findings)
}

func TestEvaluateTempCritAbort(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCTemp[6] = telemetry.Measure(85)

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	require.Len(t, findings, 1)
	f, aborted := HasAbort(findings)
	require.True(t, aborted)
	assert.Equal(t, "esc7", f.Subject)
	assert.Contains(t, f.Message, "over temperature")
}

func TestEvaluateTempCritBoundaryInclusive(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCTemp[0] = telemetry.Measure(80)

	_, aborted := HasAbort(e.Evaluate(s, stageTwo(), afterGrace))
	assert.True(t, aborted)
}

func TestEvaluateESCOverCurrentAbort(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCCurrent[1] = telemetry.Measure(120)

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	f, aborted := HasAbort(findings)
	require.True(t, aborted)
	assert.Equal(t, "esc2", f.Subject)
	assert.Contains(t, f.Message, "over current")
}

func TestEvaluateTotalOverCurrentAbort(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.TotalCurrent = telemetry.Measure(130)

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	f, aborted := HasAbort(findings)
	require.True(t, aborted)
	assert.Equal(t, "total", f.Subject)
}

func TestEvaluateTempMedianDeviation(t *testing.T) {
	e := NewEvaluator(DefaultLimits())

	s := healthySample()
	s.ESCTemp[5] = telemetry.Measure(57) // 12C over the 45C median

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Equal(t, "esc6", findings[0].Subject)

	s.ESCTemp[5] = telemetry.Measure(70) // 25C over, abort tier
	findings = e.Evaluate(s, stageTwo(), afterGrace)
	_, aborted := HasAbort(findings)
	assert.True(t, aborted)
}

func TestEvaluateAbortPreservesEarlierWarnings(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCRPM[0] = telemetry.Measure(3850) // warning
	s.ESCTemp[5] = telemetry.Measure(70)  // abort, checked after rpm

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	require.Len(t, findings, 2)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	f, aborted := HasAbort(findings)
	require.True(t, aborted)
	assert.Equal(t, "esc6", f.Subject)
}

func TestEvaluateSingleAbortPerTick(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	s := healthySample()
	s.ESCTemp[0] = telemetry.Measure(90)
	s.ESCTemp[1] = telemetry.Measure(95)
	s.ESCCurrent[2] = telemetry.Measure(150)

	findings := e.Evaluate(s, stageTwo(), afterGrace)
	require.Len(t, findings, 1)
	f, aborted := HasAbort(findings)
	require.True(t, aborted)
	// Lowest ESC index of the first failing check wins.
	assert.Equal(t, "esc1", f.Subject)
}

func TestEvaluateNoExpectationsStage(t *testing.T) {
	e := NewEvaluator(DefaultLimits())
	st := stage.Stage{Name: "Stage 1 (10%)", Duration: 600 * time.Second}

	s := healthySample()
	// Readings that would violate Stage 2 expectations are fine when the
	// stage declares none.
	for i := range s.ESCRPM {
		s.ESCRPM[i] = telemetry.Measure(1800)
	}
	s.TotalCurrent = telemetry.Measure(15)

	findings := e.Evaluate(s, st, afterGrace)
	assert.Empty(t, findings)
}

func TestMedianLower(t *testing.T) {
	assert.InDelta(t, 72.0, medianLower([]float64{70, 72, 75}), 0.001)
	assert.InDelta(t, 70.0, medianLower([]float64{70, 72}), 0.001)
	assert.InDelta(t, 70.0, medianLower([]float64{72, 70}), 0.001)
	assert.InDelta(t, 45.0, medianLower([]float64{45}), 0.001)
}

func TestHasAbortEmpty(t *testing.T) {
	_, aborted := HasAbort(nil)
	assert.False(t, aborted)
}

package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/propdyn/benchguard/internal/config"
	"github.com/propdyn/benchguard/internal/stage"
	"github.com/propdyn/benchguard/internal/telemetry"
)

// Severity classifies one finding. WARN is logged and streamed; ABORT
// additionally triggers the stop protocol.
type Severity string

const (
	SeverityWarning Severity = "WARN"
	SeverityAbort   Severity = "ABORT"
)

// Finding is the result of one anomaly check that fired. Measured,
// Expected, and Deviation are kept so a log reviewer can reconstruct the
// decision without the raw snapshot.
type Finding struct {
	Severity  Severity `json:"severity"`
	Subject   string   `json:"subject"`
	Message   string   `json:"message"`
	Measured  float64  `json:"measured"`
	Expected  float64  `json:"expected"`
	Deviation float64  `json:"deviation"`
}

// Limits is the immutable set of safety thresholds the evaluator compares
// against. It is injected at construction so per-rig tuning and tests never
// touch package state.
type Limits struct {
	RampUpGrace time.Duration

	RPMNearZeroAbort  float64
	TempCritAbort     float64
	ESCCurrMaxAbort   float64
	TotalCurrMaxAbort float64

	RPMWarnFrac  float64
	RPMAbortFrac float64

	TempWarnDiff  float64
	TempAbortDiff float64

	CurrWarnFrac  float64
	CurrAbortFrac float64
}

// DefaultLimits returns the X8 bench thresholds.
func DefaultLimits() Limits {
	return LimitsFromConfig(config.Default().Monitor)
}

// LimitsFromConfig converts the monitor config section into Limits.
func LimitsFromConfig(mc config.MonitorConfig) Limits {
	return Limits{
		RampUpGrace:       time.Duration(mc.RampUpGraceSeconds) * time.Second,
		RPMNearZeroAbort:  mc.RPMNearZeroAbort,
		TempCritAbort:     mc.TempCritAbort,
		ESCCurrMaxAbort:   mc.ESCCurrMaxAbort,
		TotalCurrMaxAbort: mc.TotalCurrMaxAbort,
		RPMWarnFrac:       mc.RPMWarnFrac,
		RPMAbortFrac:      mc.RPMAbortFrac,
		TempWarnDiff:      mc.TempWarnDiff,
		TempAbortDiff:     mc.TempAbortDiff,
		CurrWarnFrac:      mc.CurrWarnFrac,
		CurrAbortFrac:     mc.CurrAbortFrac,
	}
}

// Evaluator applies the anomaly checks for one tick.
//
// Evaluation order is fixed and fail-fast: the immediate abort conditions
// run first (near-zero rpm, critical temperature, ESC over-current, total
// over-current, scanning ESCs in ascending index), then the two-tier
// relative checks (rpm vs expected, temperature vs fleet median, ESC
// current vs expected, total current vs expected). The first ABORT ends
// evaluation for the tick; warnings accumulated before it are kept. At most
// one ABORT is ever produced per tick. On the bench, stopping promptly
// matters more than reporting every simultaneous anomaly.
type Evaluator struct {
	limits Limits
}

// NewEvaluator builds an evaluator around an immutable set of limits.
func NewEvaluator(limits Limits) *Evaluator {
	return &Evaluator{limits: limits}
}

// Evaluate runs every check against one snapshot in the documented order.
// Unmeasured channels, and rpm readings of exactly zero, are "no data" and
// never fire an expectation-relative check.
func (e *Evaluator) Evaluate(s telemetry.Sample, st stage.Stage, inStage time.Duration) []Finding {
	l := e.limits
	graceOver := inStage >= l.RampUpGrace
	var findings []Finding

	abort := func(f Finding) []Finding {
		f.Severity = SeverityAbort
		return append(findings, f)
	}

	// Immediate abort: ESC rpm near zero while the stage should be
	// spinning. An rpm of exactly 0 is no data, not a stall.
	if graceOver {
		for i := 0; i < telemetry.NumESC; i++ {
			v := s.ESCRPM[i]
			if v.Measured && v.Val > 0 && v.Val < l.RPMNearZeroAbort {
				return abort(Finding{
					Subject:  escSubject(i),
					Message:  fmt.Sprintf("ESC%d low rpm (%.0f < %.0f)", i+1, v.Val, l.RPMNearZeroAbort),
					Measured: v.Val,
					Expected: l.RPMNearZeroAbort,
				})
			}
		}
	}

	// Immediate abort: critical ESC temperature.
	for i := 0; i < telemetry.NumESC; i++ {
		v := s.ESCTemp[i]
		if v.Measured && v.Val > 0 && v.Val >= l.TempCritAbort {
			return abort(Finding{
				Subject:  escSubject(i),
				Message:  fmt.Sprintf("ESC%d over temperature (%.1fC >= %.1fC)", i+1, v.Val, l.TempCritAbort),
				Measured: v.Val,
				Expected: l.TempCritAbort,
			})
		}
	}

	// Immediate abort: ESC over-current.
	for i := 0; i < telemetry.NumESC; i++ {
		v := s.ESCCurrent[i]
		if v.Measured && v.Val > l.ESCCurrMaxAbort {
			return abort(Finding{
				Subject:  escSubject(i),
				Message:  fmt.Sprintf("ESC%d over current (%.1fA > %.1fA)", i+1, v.Val, l.ESCCurrMaxAbort),
				Measured: v.Val,
				Expected: l.ESCCurrMaxAbort,
			})
		}
	}

	// Immediate abort: total bench over-current.
	if v := s.TotalCurrent; v.Measured && v.Val > l.TotalCurrMaxAbort {
		return abort(Finding{
			Subject:  "total",
			Message:  fmt.Sprintf("Total current too high (%.1fA > %.1fA)", v.Val, l.TotalCurrMaxAbort),
			Measured: v.Val,
			Expected: l.TotalCurrMaxAbort,
		})
	}

	// Two-tier: rpm vs the stage expectation.
	if graceOver && st.ExpectedRPM > 0 {
		for i := 0; i < telemetry.NumESC; i++ {
			v := s.ESCRPM[i]
			if !v.Measured || v.Val == 0 {
				continue
			}
			frac := fracDev(v.Val, st.ExpectedRPM)
			if frac > l.RPMAbortFrac {
				return abort(Finding{
					Subject:   escSubject(i),
					Message:   fmt.Sprintf("ESC%d rpm out of range (%.0f vs %.0f, %.0f%%)", i+1, v.Val, st.ExpectedRPM, frac*100),
					Measured:  v.Val,
					Expected:  st.ExpectedRPM,
					Deviation: frac * 100,
				})
			}
			if frac >= l.RPMWarnFrac {
				findings = append(findings, Finding{
					Severity:  SeverityWarning,
					Subject:   escSubject(i),
					Message:   fmt.Sprintf("ESC%d rpm off (%.0f vs %.0f, %.0f%%)", i+1, v.Val, st.ExpectedRPM, frac*100),
					Measured:  v.Val,
					Expected:  st.ExpectedRPM,
					Deviation: frac * 100,
				})
			}
		}
	}

	// Two-tier: temperature vs the median of the reporting ESCs. Channels
	// with no data are excluded from the median and from being flagged.
	var temps []float64
	for i := 0; i < telemetry.NumESC; i++ {
		if v := s.ESCTemp[i]; v.Measured && v.Val > 0 {
			temps = append(temps, v.Val)
		}
	}
	if len(temps) > 0 {
		med := medianLower(temps)
		for i := 0; i < telemetry.NumESC; i++ {
			v := s.ESCTemp[i]
			if !v.Measured || v.Val <= 0 {
				continue
			}
			diff := v.Val - med
			adiff := diff
			if adiff < 0 {
				adiff = -adiff
			}
			if adiff > l.TempAbortDiff {
				return abort(Finding{
					Subject:   escSubject(i),
					Message:   fmt.Sprintf("ESC%d temp off median (%.1fC vs %.1fC, diff=%.1fC)", i+1, v.Val, med, diff),
					Measured:  v.Val,
					Expected:  med,
					Deviation: diff,
				})
			}
			if adiff >= l.TempWarnDiff {
				findings = append(findings, Finding{
					Severity:  SeverityWarning,
					Subject:   escSubject(i),
					Message:   fmt.Sprintf("ESC%d temp off median (%.1fC vs %.1fC, diff=%.1fC)", i+1, v.Val, med, diff),
					Measured:  v.Val,
					Expected:  med,
					Deviation: diff,
				})
			}
		}
	}

	// Two-tier: ESC current vs the stage expectation.
	if st.ExpectedESCCurrent > 0 {
		for i := 0; i < telemetry.NumESC; i++ {
			v := s.ESCCurrent[i]
			if !v.Measured || v.Val == 0 {
				continue
			}
			frac := fracDev(v.Val, st.ExpectedESCCurrent)
			if frac > l.CurrAbortFrac {
				return abort(Finding{
					Subject:   escSubject(i),
					Message:   fmt.Sprintf("ESC%d current out of range (%.1fA vs %.1fA, %.0f%%)", i+1, v.Val, st.ExpectedESCCurrent, frac*100),
					Measured:  v.Val,
					Expected:  st.ExpectedESCCurrent,
					Deviation: frac * 100,
				})
			}
			if frac >= l.CurrWarnFrac {
				findings = append(findings, Finding{
					Severity:  SeverityWarning,
					Subject:   escSubject(i),
					Message:   fmt.Sprintf("ESC%d current off (%.1fA vs %.1fA, %.0f%%)", i+1, v.Val, st.ExpectedESCCurrent, frac*100),
					Measured:  v.Val,
					Expected:  st.ExpectedESCCurrent,
					Deviation: frac * 100,
				})
			}
		}
	}

	// Two-tier: total current vs the stage expectation.
	if st.ExpectedTotalCurrent > 0 {
		if v := s.TotalCurrent; v.Measured && v.Val != 0 {
			frac := fracDev(v.Val, st.ExpectedTotalCurrent)
			if frac > l.CurrAbortFrac {
				return abort(Finding{
					Subject:   "total",
					Message:   fmt.Sprintf("Total current out of range (%.1fA vs %.1fA, %.0f%%)", v.Val, st.ExpectedTotalCurrent, frac*100),
					Measured:  v.Val,
					Expected:  st.ExpectedTotalCurrent,
					Deviation: frac * 100,
				})
			}
			if frac >= l.CurrWarnFrac {
				findings = append(findings, Finding{
					Severity:  SeverityWarning,
					Subject:   "total",
					Message:   fmt.Sprintf("Total current off (%.1fA vs %.1fA, %.0f%%)", v.Val, st.ExpectedTotalCurrent, frac*100),
					Measured:  v.Val,
					Expected:  st.ExpectedTotalCurrent,
					Deviation: frac * 100,
				})
			}
		}
	}

	return findings
}

// HasAbort reports whether a finding list ends in an abort. The evaluator
// only ever appends an abort as the final element.
func HasAbort(findings []Finding) (Finding, bool) {
	if n := len(findings); n > 0 && findings[n-1].Severity == SeverityAbort {
		return findings[n-1], true
	}
	return Finding{}, false
}

func escSubject(i int) string {
	return fmt.Sprintf("esc%d", i+1)
}

func fracDev(measured, expected float64) float64 {
	d := (measured - expected) / expected
	if d < 0 {
		return -d
	}
	return d
}

// medianLower returns the lower-middle element of the sorted values,
// never an interpolated average: [70 72 75] -> 72, [70 72] -> 70. The
// temperature deviation checks depend on this exact tie-break.
func medianLower(values []float64) float64 {
	vals := make([]float64, len(values))
	copy(vals, values)
	sort.Float64s(vals)
	return vals[(len(vals)-1)/2]
}

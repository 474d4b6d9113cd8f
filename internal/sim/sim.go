// Package sim simulates the X8 rig so the daemon, CLI, and dashboard can be
// exercised end-to-end without hardware. While the enable flag is set it
// publishes plausible per-stage telemetry into the store the way the
// rig-side bridge would, and it can inject a scripted fault part-way into
// the run so the abort path can be demonstrated safely.
package sim

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/propdyn/benchguard/internal/stage"
	"github.com/propdyn/benchguard/internal/store"
	"github.com/propdyn/benchguard/internal/telemetry"
	"github.com/propdyn/benchguard/internal/ws"
)

// Runner publishes simulated telemetry on a fixed interval.
type Runner struct {
	Store    *store.Memory
	Plan     stage.Plan
	Hub      *ws.Hub
	Log      *logrus.Logger
	Interval time.Duration

	// EnableParam is the flag the runner watches to decide whether the
	// virtual motors are spinning.
	EnableParam string

	// Fault names a scripted anomaly ("stall", "overtemp", "overcurrent",
	// "rpm_drift", "temp_spread"); empty means a clean run. FaultAfter is
	// how far into the run it appears.
	Fault      string
	FaultAfter time.Duration

	runStart time.Time
}

// Run publishes one batch of channel values per interval until ctx is
// cancelled. Idle values are published even with the flag clear, so the
// monitor always has a live store to read from.
func (r *Runner) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}

	r.broadcast(map[string]any{
		"type":    "log",
		"level":   "info",
		"message": "sim mode active, publishing simulated rig telemetry",
	})

	r.step()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.step()
		}
	}
}

// step publishes one batch of channel values.
func (r *Runner) step() {
	enabled := false
	if v, ok := r.Store.Flag(r.EnableParam); ok && v >= 0.5 {
		enabled = true
	}

	if !enabled {
		r.runStart = time.Time{}
		r.publishIdle()
		return
	}

	if r.runStart.IsZero() {
		r.runStart = time.Now()
		r.Log.Infof("sim: enable flag set, virtual motors spinning up")
	}
	elapsed := time.Since(r.runStart)
	idx, _ := r.Plan.ResolveAt(elapsed)
	st := r.Plan.Stage(idx)

	rpm := st.ExpectedRPM
	if rpm <= 0 {
		rpm = 1800 // low-duty stage with no expectation: idle-ish spin
	}
	escCurr := st.ExpectedESCCurrent
	if escCurr <= 0 {
		escCurr = 2.0
	}
	totalCurr := st.ExpectedTotalCurrent
	if totalCurr <= 0 {
		totalCurr = 8 * escCurr
	}

	var rpms, currs, temps [telemetry.NumESC]float64
	for i := 0; i < telemetry.NumESC; i++ {
		rpms[i] = jitter(rpm, 0.02)
		currs[i] = jitter(escCurr, 0.03)
		temps[i] = 42 + rand.Float64()*4 + float64(i)*0.3
	}
	total := jitter(totalCurr, 0.03)
	voltage := 49.0 - 0.005*total - rand.Float64()*0.3

	if r.Fault != "" && elapsed >= r.FaultAfter {
		r.injectFault(&rpms, &currs, &temps, &total)
	}

	for i := 0; i < telemetry.NumESC; i++ {
		r.Store.SetChannel(telemetry.ESCChannel(i, "rpm"), rpms[i])
		r.Store.SetChannel(telemetry.ESCChannel(i, "curr"), currs[i])
		r.Store.SetChannel(telemetry.ESCChannel(i, "temp"), temps[i])
	}
	for i := 0; i < telemetry.NumLoadCell; i++ {
		// Thrust roughly tracks rpm; the exact scale only needs to look
		// plausible on the status line.
		r.Store.SetChannel(telemetry.LoadCellChannel(i), rpms[i%telemetry.NumESC]*0.004*(1+rand.Float64()*0.02))
	}
	r.Store.SetChannel(telemetry.TotalCurrentChannel(), total)
	r.Store.SetChannel(telemetry.TotalVoltageChannel(), voltage)
}

// publishIdle writes motors-off values: no rotation, ambient temperatures,
// battery voltage at rest.
func (r *Runner) publishIdle() {
	for i := 0; i < telemetry.NumESC; i++ {
		r.Store.SetChannel(telemetry.ESCChannel(i, "rpm"), 0)
		r.Store.SetChannel(telemetry.ESCChannel(i, "curr"), 0)
		r.Store.SetChannel(telemetry.ESCChannel(i, "temp"), 24+rand.Float64())
	}
	for i := 0; i < telemetry.NumLoadCell; i++ {
		r.Store.SetChannel(telemetry.LoadCellChannel(i), 0)
	}
	r.Store.SetChannel(telemetry.TotalCurrentChannel(), 0.4+rand.Float64()*0.2)
	r.Store.SetChannel(telemetry.TotalVoltageChannel(), 50.2)
}

// injectFault perturbs one batch according to the scripted fault. Each
// fault targets a fixed ESC so consecutive ticks tell a consistent story.
func (r *Runner) injectFault(rpms, currs, temps *[telemetry.NumESC]float64, total *float64) {
	switch r.Fault {
	case "stall":
		rpms[2] = 280 + rand.Float64()*60
	case "overtemp":
		temps[4] = 84 + rand.Float64()*3
	case "overcurrent":
		currs[1] = 115 + rand.Float64()*10
	case "rpm_drift":
		rpms[0] *= 1.38
	case "temp_spread":
		temps[6] += 24
	}
}

func (r *Runner) broadcast(v map[string]any) {
	v["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	v["component"] = "sim"
	r.Hub.BroadcastJSON(v)
}

// jitter returns v perturbed by a uniform fraction in [-f, +f].
func jitter(v, f float64) float64 {
	return v * (1 + (rand.Float64()*2-1)*f)
}

package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/propdyn/benchguard/internal/telemetry"
)

// Prometheus collectors for the daemon's /metrics endpoint. Gauges carry
// the latest snapshot; counters accumulate over the daemon lifetime, not
// per run.
var (
	escRPM = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "benchguard_esc_rpm",
		Help: "Latest rpm reported per ESC.",
	}, []string{"esc"})

	escCurrent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "benchguard_esc_current_amps",
		Help: "Latest current reported per ESC.",
	}, []string{"esc"})

	escTemp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "benchguard_esc_temp_celsius",
		Help: "Latest temperature reported per ESC.",
	}, []string{"esc"})

	loadCell = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "benchguard_load_cell",
		Help: "Latest load cell reading per channel.",
	}, []string{"channel"})

	totalCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "benchguard_total_current_amps",
		Help: "Latest bench total current.",
	})

	totalVoltage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "benchguard_total_voltage_volts",
		Help: "Latest bench total voltage.",
	})

	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benchguard_ticks_total",
		Help: "Monitoring ticks executed.",
	})

	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchguard_findings_total",
		Help: "Findings produced, by severity.",
	}, []string{"severity"})

	stopFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benchguard_stop_failures_total",
		Help: "Stop requests the remote store did not acknowledge.",
	})
)

// publishSample pushes one snapshot into the gauges. Unmeasured channels
// keep their previous value rather than reporting a phantom zero.
func publishSample(s telemetry.Sample) {
	for i := 0; i < telemetry.NumESC; i++ {
		esc := strconv.Itoa(i + 1)
		if v := s.ESCRPM[i]; v.Measured {
			escRPM.WithLabelValues(esc).Set(v.Val)
		}
		if v := s.ESCCurrent[i]; v.Measured {
			escCurrent.WithLabelValues(esc).Set(v.Val)
		}
		if v := s.ESCTemp[i]; v.Measured {
			escTemp.WithLabelValues(esc).Set(v.Val)
		}
	}
	for i := 0; i < telemetry.NumLoadCell; i++ {
		if v := s.LoadCell[i]; v.Measured {
			loadCell.WithLabelValues(strconv.Itoa(i + 1)).Set(v.Val)
		}
	}
	if s.TotalCurrent.Measured {
		totalCurrent.Set(s.TotalCurrent.Val)
	}
	if s.TotalVoltage.Measured {
		totalVoltage.Set(s.TotalVoltage.Val)
	}
	ticksTotal.Inc()
}

// Package telemetry defines the per-tick snapshot of everything the bench
// instruments report: eight ESCs (rpm, current, temperature), four load
// cells, and the bench totals from the Arduino bridge. The Reader composes
// one Sample per tick from the remote store.
package telemetry

import "fmt"

// Channel counts for the X8 rig. The checks, the status line, and the
// channel naming convention all assume these.
const (
	NumESC      = 8
	NumLoadCell = 4
)

// Value is one telemetry reading. Measured distinguishes a real reading
// from a channel that reported nothing this tick, so downstream checks
// never have to overload 0.0 as a "no data" sentinel.
type Value struct {
	Val      float64
	Measured bool
}

// Measure wraps a raw reading.
func Measure(v float64) Value {
	return Value{Val: v, Measured: true}
}

// MarshalJSON renders a measured value as a plain number and a missing one
// as null, which is what the event stream and the CLI expect.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Measured {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%g", v.Val)), nil
}

// UnmarshalJSON is the inverse of MarshalJSON: null means not measured.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if _, err := fmt.Sscanf(string(b), "%g", &f); err != nil {
		return err
	}
	*v = Value{Val: f, Measured: true}
	return nil
}

// Sample is one complete reading of all monitored channels. It is created
// fresh each tick, consumed by the evaluator, and discarded.
type Sample struct {
	ESCRPM       [NumESC]Value      `json:"esc_rpm"`
	ESCCurrent   [NumESC]Value      `json:"esc_current"`
	ESCTemp      [NumESC]Value      `json:"esc_temp"`
	LoadCell     [NumLoadCell]Value `json:"load_cell"`
	TotalCurrent Value              `json:"total_current"`
	TotalVoltage Value              `json:"total_voltage"`
}

// Channel names follow the flight-controller and Arduino bridge convention:
// esc1_rpm..esc8_temp for the ESCs, customfield0..3 for the load cells,
// customfield4/5 for bench current and voltage.
const (
	chanTotalCurrent = "customfield4"
	chanTotalVoltage = "customfield5"
)

// ESCChannel returns the store channel name for one ESC field.
// idx is 0-based; the wire names are 1-based.
func ESCChannel(idx int, field string) string {
	return fmt.Sprintf("esc%d_%s", idx+1, field)
}

// LoadCellChannel returns the store channel name for one load cell.
func LoadCellChannel(idx int) string {
	return fmt.Sprintf("customfield%d", idx)
}

// TotalCurrentChannel returns the bench total-current channel name.
func TotalCurrentChannel() string { return chanTotalCurrent }

// TotalVoltageChannel returns the bench total-voltage channel name.
func TotalVoltageChannel() string { return chanTotalVoltage }

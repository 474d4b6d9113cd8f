// Package store abstracts the remote parameter and telemetry store shared
// with the rig-side bridge. The flight controller's scripting parameter
// (the test enable flag) and every telemetry channel are exposed as named
// float values; the monitor reads channels, mirrors the flag, and clears it
// to request a stop.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a channel or flag exists in name only:
// the store answered, but has no usable value for it. Callers treat this
// as "no data", not as a transport failure.
var ErrUnavailable = errors.New("store: value unavailable")

// Store is the interface between the monitor and the remote store. All
// calls are synchronous and must respect ctx deadlines; a transport-level
// failure is returned as an ordinary error distinct from ErrUnavailable so
// the monitoring loop can tell a dead link from a silent channel.
type Store interface {
	// ReadChannel returns the latest value of a telemetry channel.
	ReadChannel(ctx context.Context, name string) (float64, error)

	// ReadFlag returns the current value of a parameter flag
	// (boolean-as-float: < 0.5 disabled, >= 0.5 enabled).
	ReadFlag(ctx context.Context, name string) (float64, error)

	// WriteFlag sets a parameter flag. The write is acknowledged only
	// when the store accepted it.
	WriteFlag(ctx context.Context, name string, value float64) error
}

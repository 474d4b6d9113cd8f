package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/propdyn/benchguard/internal/store"
)

// Reader pulls one Sample per tick from the remote store.
//
// Per-channel misses are normalized to an unmeasured Value and never fail
// the snapshot; a transport-level failure aborts the snapshot and is
// returned to the caller, because a store that cannot be reached at all is
// a loop-terminating condition, not a missing channel.
type Reader struct {
	st store.Store
}

// NewReader wraps a store in a Reader.
func NewReader(st store.Store) *Reader {
	return &Reader{st: st}
}

// Snapshot reads every monitored channel once.
func (r *Reader) Snapshot(ctx context.Context) (Sample, error) {
	var s Sample

	for i := 0; i < NumESC; i++ {
		var err error
		if s.ESCRPM[i], err = r.read(ctx, ESCChannel(i, "rpm")); err != nil {
			return Sample{}, err
		}
		if s.ESCCurrent[i], err = r.read(ctx, ESCChannel(i, "curr")); err != nil {
			return Sample{}, err
		}
		if s.ESCTemp[i], err = r.read(ctx, ESCChannel(i, "temp")); err != nil {
			return Sample{}, err
		}
	}

	for i := 0; i < NumLoadCell; i++ {
		var err error
		if s.LoadCell[i], err = r.read(ctx, LoadCellChannel(i)); err != nil {
			return Sample{}, err
		}
	}

	var err error
	if s.TotalCurrent, err = r.read(ctx, TotalCurrentChannel()); err != nil {
		return Sample{}, err
	}
	if s.TotalVoltage, err = r.read(ctx, TotalVoltageChannel()); err != nil {
		return Sample{}, err
	}

	return s, nil
}

func (r *Reader) read(ctx context.Context, name string) (Value, error) {
	v, err := r.st.ReadChannel(ctx, name)
	if errors.Is(err, store.ErrUnavailable) {
		return Value{}, nil
	}
	if err != nil {
		return Value{}, fmt.Errorf("read %s: %w", name, err)
	}
	return Measure(v), nil
}

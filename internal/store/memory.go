package store

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process Store used by sim mode and by tests. It honors
// the same unavailable/transport-error distinction as the redis store and
// can be switched into degraded modes to exercise failure paths.
type Memory struct {
	mu       sync.Mutex
	channels map[string]float64
	params   map[string]float64

	offline    bool
	failWrites bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		channels: make(map[string]float64),
		params:   make(map[string]float64),
	}
}

var errOffline = errors.New("store: link down")

// ReadChannel implements Store.
func (m *Memory) ReadChannel(ctx context.Context, name string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return 0, errOffline
	}
	v, ok := m.channels[name]
	if !ok {
		return 0, ErrUnavailable
	}
	return v, nil
}

// ReadFlag implements Store.
func (m *Memory) ReadFlag(ctx context.Context, name string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return 0, errOffline
	}
	v, ok := m.params[name]
	if !ok {
		return 0, ErrUnavailable
	}
	return v, nil
}

// WriteFlag implements Store.
func (m *Memory) WriteFlag(ctx context.Context, name string, value float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline || m.failWrites {
		return errOffline
	}
	m.params[name] = value
	return nil
}

// SetChannel publishes one telemetry channel, the way the rig bridge would.
func (m *Memory) SetChannel(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = value
}

// DeleteChannel removes a channel so reads report it unavailable.
func (m *Memory) DeleteChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// SetFlag sets a parameter flag directly, bypassing failure modes.
func (m *Memory) SetFlag(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[name] = value
}

// Flag returns the current flag value and whether it has ever been set.
func (m *Memory) Flag(name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.params[name]
	return v, ok
}

// SetOffline simulates a dead link: every call fails with a transport error.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// SetFailWrites makes WriteFlag fail while reads keep working, which is the
// "parameter locked" failure the stop protocol has to survive.
func (m *Memory) SetFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

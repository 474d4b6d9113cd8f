package app

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// logEntry is one buffered daemon log line, served by /api/logs.
type logEntry struct {
	TS      string `json:"ts"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ringBuffer keeps the most recent N items. Appends past the capacity drop
// the oldest entry.
type ringBuffer[T any] struct {
	mu    sync.Mutex
	items []T
	cap   int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	return &ringBuffer[T]{cap: capacity}
}

func (r *ringBuffer[T]) append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

func (r *ringBuffer[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]T, len(r.items))
	copy(cp, r.items)
	return cp
}

// bufferHook is a logrus hook that mirrors every log line into the app's
// ring buffer so the CLI can fetch recent history over HTTP.
type bufferHook struct {
	buf *ringBuffer[logEntry]
}

func (h *bufferHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *bufferHook) Fire(e *logrus.Entry) error {
	h.buf.append(logEntry{
		TS:      e.Time.UTC().Format(time.RFC3339Nano),
		Level:   e.Level.String(),
		Message: e.Message,
	})
	return nil
}

// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// LogRecorder is a [slog.Handler] that captures every record passed through
// it, so tests can assert on diagnostic output. The zero value is ready to
// use. WithAttrs and WithGroup return the recorder itself: derived loggers
// keep writing into the same capture buffer.
type LogRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r.Clone())
	h.mu.Unlock()
	return nil
}

func (h *LogRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *LogRecorder) WithGroup(string) slog.Handler { return h }

// Records returns a copy of all captured records.
func (h *LogRecorder) Records() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]slog.Record, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of captured records.
func (h *LogRecorder) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Find returns the first captured record with the given message.
func (h *LogRecorder) Find(msg string) (slog.Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Message == msg {
			return r, true
		}
	}
	return slog.Record{}, false
}

// Attr returns the value of the named attribute in the record.
func Attr(r slog.Record, key string) (slog.Value, bool) {
	var val slog.Value
	var found bool
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			val = a.Value
			found = true
			return false
		}
		return true
	})
	return val, found
}

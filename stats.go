package sched

import (
	"log/slog"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	// Scheduled is a number of timers accepted by ScheduleTimer.
	Scheduled uint64 `json:"scheduled"`
	// Fired is a number of timers whose action was invoked.
	Fired uint64 `json:"fired"`
	// Failed is a number of timers dropped due to arming or wait failures.
	Failed uint64 `json:"failed"`
}

// LogValue implements [slog.LogValuer].
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("scheduled", s.Scheduled),
		slog.Uint64("fired", s.Fired),
		slog.Uint64("failed", s.Failed),
	)
}

type statsRecorder struct {
	scheduled atomic.Uint64
	fired     atomic.Uint64
	failed    atomic.Uint64
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Scheduled: s.stats.scheduled.Load(),
		Fired:     s.stats.fired.Load(),
		Failed:    s.stats.failed.Load(),
	}
}

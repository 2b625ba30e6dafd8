package sched

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sched/log"
)

// SchedulerOptions are the options for a [Scheduler].
type SchedulerOptions struct {
	// Logger is the logger used as the diagnostic sink for all non-fatal
	// failures. If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *SchedulerOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Scheduler is the public entry point for timer management.
//
// It owns one background [Loop] plus a keep-alive token, started at
// construction and torn down by [Scheduler.Close]. All expiration callbacks
// of one scheduler execute serially on the loop goroutine; independent
// schedulers are fully isolated from each other.
//
// Once constructed, no scheduler operation returns an error: arming and
// completion failures are reported through the diagnostic logger and the
// affected timer's action is dropped. Callers needing resilience must
// re-schedule explicitly.
type Scheduler struct {
	loop    *Loop
	release func()
	log     *slog.Logger
	stats   statsRecorder

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewScheduler creates a [Scheduler] with a freshly started event loop.
// Options are optional, if nil, default values are used (see [SchedulerOptions]).
//
// A start failure is the only error that ever crosses this API boundary;
// it leaves no background goroutine behind.
func NewScheduler(opts *SchedulerOptions) (*Scheduler, error) {
	s := &Scheduler{log: opts.log()}
	s.loop = NewLoop(&LoopOptions{Logger: s.log})
	s.release = s.loop.KeepAlive()
	if err := s.loop.Start(); err != nil {
		s.release()
		return nil, errtrace.Wrap(err)
	}
	return s, nil
}

// ScheduleTimer arms a one-shot timer: after at least delay has elapsed, cb
// is invoked on the scheduler's loop goroutine with id and the given
// trailing arguments, unchanged and in order. The args slice is captured by
// value at call time, so later mutations by the caller are not observed.
//
// The identifier is an opaque diagnostic value passed through to the
// callback; duplicates are allowed and there is no way to cancel an armed
// timer. ScheduleTimer never blocks and may be called from any goroutine,
// including from inside a firing callback to re-arm it.
func (s *Scheduler) ScheduleTimer(id uint64, delay time.Duration, cb Callback, args ...any) {
	if cb == nil {
		s.log.LogAttrs(context.Background(), slog.LevelError,
			"discarding timer with nil callback",
			slog.Uint64("timer_id", id),
		)
		return
	}
	if s.closed.Load() {
		s.log.LogAttrs(context.Background(), slog.LevelError,
			"error scheduling timer",
			slog.Uint64("timer_id", id),
			slog.Any("error", ErrSchedulerClosed),
		)
		return
	}

	tmr := newTimer(id, delay, cb, slices.Clone(args), s.log)
	s.stats.scheduled.Add(1)

	err := s.loop.Register(delay, func(err error) {
		if err != nil {
			s.stats.failed.Add(1)
			tmr.fail(err)
			return
		}
		s.stats.fired.Add(1)
		tmr.fire()
	})
	if err != nil {
		s.stats.failed.Add(1)
		s.log.LogAttrs(context.Background(), slog.LevelError,
			"error scheduling timer",
			slog.Uint64("timer_id", id),
			slog.Any("error", err),
		)
	}
}

// Close shuts the scheduler down: it releases the keep-alive token, stops
// the loop and waits for the background goroutine to exit. Timers still
// pending are abandoned: their wait failures are logged with the timer
// identifier, their actions never invoked. Close is idempotent and never
// panics; shutdown failures are logged, not returned.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.release()
		s.loop.Stop()
		s.loop.Wait()
	})
	return nil
}

// LogValue implements [slog.LogValuer].
func (s *Scheduler) LogValue() slog.Value {
	if s == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Bool("closed", s.closed.Load()),
		slog.Any("stats", s.Stats()),
	)
}

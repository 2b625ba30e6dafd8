package sched_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/ghettovoice/sched"
	"github.com/ghettovoice/sched/internal/testutil"
	"github.com/ghettovoice/sched/internal/testutil/logmock"
)

func newTestScheduler(t *testing.T) (*sched.Scheduler, *testutil.LogRecorder) {
	t.Helper()

	rec := &testutil.LogRecorder{}
	s, err := sched.NewScheduler(&sched.SchedulerOptions{Logger: slog.New(rec)})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, rec
}

func TestScheduler_ScheduleTimer(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)

	fired := make(chan []any, 1)
	start := time.Now()
	s.ScheduleTimer(7, 30*time.Millisecond, func(id uint64, args ...any) {
		fired <- append([]any{id}, args...)
	}, 42)

	select {
	case got := <-fired:
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("timer fired after %v, want at least %v", elapsed, 30*time.Millisecond)
		}
		want := []any{uint64(7), 42}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("callback invocation mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestScheduler_ScheduleTimerForwardsArgs(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)

	fired := make(chan []any, 1)
	s.ScheduleTimer(1, 0, func(_ uint64, args ...any) {
		fired <- args
	}, 1, "two", 3.5)

	select {
	case got := <-fired:
		if diff := cmp.Diff([]any{1, "two", 3.5}, got); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestScheduler_FiresInDeadlineOrder(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)

	var (
		mu    sync.Mutex
		order []uint64
	)
	done := make(chan struct{})
	cb := func(id uint64, _ ...any) {
		mu.Lock()
		order = append(order, id)
		n := len(order)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	}

	s.ScheduleTimer(2, 60*time.Millisecond, cb)
	s.ScheduleTimer(1, 20*time.Millisecond, cb)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timers never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]uint64{1, 2}, order); diff != "" {
		t.Errorf("firing order mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduler_SerializesCallbacks(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)

	const n = 8
	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		fired    atomic.Int32
	)
	done := make(chan struct{})
	cb := func(_ uint64, _ ...any) {
		cur := inFlight.Add(1)
		if cur > maxSeen.Load() {
			maxSeen.Store(cur)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		if fired.Add(1) == n {
			close(done)
		}
	}
	for i := range n {
		s.ScheduleTimer(uint64(i), 10*time.Millisecond, cb)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timers never fired")
	}
	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent callbacks = %d, want 1", got)
	}
}

type countdown struct {
	s    *sched.Scheduler
	left atomic.Int32
	hits atomic.Int32
	done chan struct{}
}

func (c *countdown) tick(id uint64, _ ...any) {
	c.hits.Add(1)
	if c.left.Add(-1) > 0 {
		c.s.ScheduleTimer(id, time.Millisecond, sched.Bind(c, (*countdown).tick))
		return
	}
	close(c.done)
}

func TestScheduler_RearmFromCallback(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)

	c := &countdown{s: s, done: make(chan struct{})}
	c.left.Store(5)
	s.ScheduleTimer(9, time.Millisecond, sched.Bind(c, (*countdown).tick))

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("countdown never completed")
	}
	if got := c.hits.Load(); got != 5 {
		t.Errorf("callback fired %d times, want 5", got)
	}
}

func TestScheduler_CloseImmediately(t *testing.T) {
	t.Parallel()

	s, rec := newTestScheduler(t)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := rec.Len(); got != 0 {
		t.Errorf("unexpected log records after clean close: %v", rec.Records())
	}
}

func TestScheduler_CloseAbandonsPending(t *testing.T) {
	t.Parallel()

	s, rec := newTestScheduler(t)

	var fired atomic.Bool
	s.ScheduleTimer(13, time.Hour, func(uint64, ...any) { fired.Store(true) })
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if fired.Load() {
		t.Error("abandoned timer's action was invoked")
	}
	r, ok := rec.Find("error waiting on timer")
	if !ok {
		t.Fatalf("missing wait failure record, got %v", rec.Records())
	}
	id, ok := testutil.Attr(r, "timer_id")
	if !ok {
		t.Fatal("wait failure record carries no timer_id")
	}
	if got := id.Uint64(); got != 13 {
		t.Errorf("timer_id = %d, want 13", got)
	}
}

func TestScheduler_ScheduleAfterClose(t *testing.T) {
	t.Parallel()

	s, rec := newTestScheduler(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var fired atomic.Bool
	s.ScheduleTimer(21, time.Millisecond, func(uint64, ...any) { fired.Store(true) })
	time.Sleep(20 * time.Millisecond)

	if fired.Load() {
		t.Error("timer scheduled after close was fired")
	}
	if _, ok := rec.Find("error scheduling timer"); !ok {
		t.Errorf("missing scheduling failure record, got %v", rec.Records())
	}
	if got := s.Stats().Scheduled; got != 0 {
		t.Errorf("Stats().Scheduled = %d, want 0", got)
	}
}

func TestScheduler_NilCallback(t *testing.T) {
	t.Parallel()

	s, rec := newTestScheduler(t)

	s.ScheduleTimer(1, time.Millisecond, nil)

	if _, ok := rec.Find("discarding timer with nil callback"); !ok {
		t.Errorf("missing nil callback record, got %v", rec.Records())
	}
	if got := s.Stats().Scheduled; got != 0 {
		t.Errorf("Stats().Scheduled = %d, want 0", got)
	}
}

func TestScheduler_SurvivesCallbackPanic(t *testing.T) {
	t.Parallel()

	s, rec := newTestScheduler(t)

	fired := make(chan struct{})
	s.ScheduleTimer(1, time.Millisecond, func(uint64, ...any) { panic("boom") })
	s.ScheduleTimer(2, 10*time.Millisecond, func(uint64, ...any) { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("loop died after callback panic")
	}
	if _, ok := rec.Find("recovered panic in timer completion"); !ok {
		t.Errorf("missing panic recovery record, got %v", rec.Records())
	}
}

func TestScheduler_Stats(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)

	fired := make(chan struct{}, 2)
	cb := func(uint64, ...any) { fired <- struct{}{} }
	s.ScheduleTimer(1, time.Millisecond, cb)
	s.ScheduleTimer(2, time.Millisecond, cb)
	for range 2 {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer never fired")
		}
	}

	s.ScheduleTimer(3, time.Hour, cb)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := sched.Stats{Scheduled: 3, Fired: 2, Failed: 1}
	if diff := cmp.Diff(want, s.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduler_ReportsToInjectedHandler(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	h := logmock.NewMockHandler(ctrl)
	h.EXPECT().Enabled(gomock.Any(), gomock.Any()).Return(true).AnyTimes()
	h.EXPECT().Handle(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r slog.Record) error {
			if r.Message != "discarding timer with nil callback" {
				t.Errorf("unexpected record %q", r.Message)
			}
			return nil
		})

	s, err := sched.NewScheduler(&sched.SchedulerOptions{Logger: slog.New(h)})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.ScheduleTimer(1, 0, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

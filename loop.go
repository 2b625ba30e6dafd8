package sched

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sched/internal/types"
	"github.com/ghettovoice/sched/log"
)

// LoopOptions are the options for a [Loop].
type LoopOptions struct {
	// Logger is the logger.
	// If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *LoopOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// wait is a single registered timed wait. It is shared between the
// submission deque and the loop goroutine's deadline heap; once the
// completion handler returns the wait is garbage.
type wait struct {
	deadline time.Time
	complete func(error)
	// seq keeps waits with equal deadlines in registration order.
	seq uint64
}

// waitHeap is a min-heap of pending waits ordered by deadline.
// It is owned exclusively by the loop goroutine.
type waitHeap []*wait

func (h waitHeap) Len() int { return len(h) }

func (h waitHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h waitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *waitHeap) Push(x any) { *h = append(*h, x.(*wait)) } //nolint:forcetypeassert

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

// Loop is a single-goroutine reactor that owns registered timed waits and
// dispatches their completions serially on its own background goroutine.
//
// The loop mirrors the run-until-out-of-work contract of an IO event loop:
// once started it keeps running while there are pending waits or while at
// least one keep-alive token from [Loop.KeepAlive] is held, and exits on
// [Loop.Stop] or when it runs out of both. Completions of waits still
// pending at shutdown are invoked with [ErrLoopClosed] before the goroutine
// exits; after that point no completion handler runs.
type Loop struct {
	log *slog.Logger

	regMu     sync.RWMutex
	accepting bool
	regs      types.Deque[*wait]

	wake    chan struct{}
	stopCh  chan struct{}
	started chan struct{}
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	tokens atomic.Int64
	seq    atomic.Uint64
}

// NewLoop creates a new [Loop].
// Options are optional, if nil, default values are used (see [LoopOptions]).
func NewLoop(opts *LoopOptions) *Loop {
	return &Loop{
		log:       opts.log(),
		accepting: true,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		started:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start spawns the background goroutine and returns once it is confirmed
// running. Starting an already started loop is an error.
func (lp *Loop) Start() error {
	var first bool
	lp.startOnce.Do(func() {
		first = true
		go lp.run()
		<-lp.started
	})
	if !first {
		return errtrace.Wrap(ErrLoopStarted)
	}
	return nil
}

// KeepAlive acquires a keep-alive token that prevents the loop from exiting
// while it has no pending waits. The returned release func is idempotent.
func (lp *Loop) KeepAlive() (release func()) {
	lp.tokens.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			if lp.tokens.Add(-1) == 0 {
				lp.poke()
			}
		})
	}
}

// Register schedules onComplete to run on the loop goroutine once delay has
// elapsed. It never blocks and is safe to call from any goroutine, including
// the loop goroutine itself, which is how completions re-arm new waits.
//
// A negative delay is treated as zero. Register returns an error only when
// the wait could not be armed: [ErrInvalidArgument] for a nil handler and
// [ErrLoopClosed] once the loop has shut down. In the error case onComplete
// is never invoked.
func (lp *Loop) Register(delay time.Duration, onComplete func(error)) error {
	if onComplete == nil {
		return errtrace.Wrap(NewInvalidArgumentError("nil completion handler"))
	}
	if delay < 0 {
		delay = 0
	}

	w := &wait{
		deadline: time.Now().Add(delay),
		complete: onComplete,
		seq:      lp.seq.Add(1),
	}

	lp.regMu.RLock()
	if !lp.accepting {
		lp.regMu.RUnlock()
		return errtrace.Wrap(ErrLoopClosed)
	}
	lp.regs.Append(w)
	lp.regMu.RUnlock()

	lp.poke()
	return nil
}

// Stop requests the loop to exit after draining due work.
// It is idempotent and safe to call from any goroutine.
func (lp *Loop) Stop() {
	lp.stopOnce.Do(func() { close(lp.stopCh) })
}

// Wait blocks until the loop goroutine has exited.
// It must only be called after [Loop.Start].
func (lp *Loop) Wait() { <-lp.done }

func (lp *Loop) poke() {
	select {
	case lp.wake <- struct{}{}:
	default:
	}
}

func (lp *Loop) run() {
	close(lp.started)
	defer close(lp.done)

	var pending waitHeap
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		for _, w := range lp.regs.Drain() {
			heap.Push(&pending, w)
		}

		now := time.Now()
		for pending.Len() > 0 && !pending[0].deadline.After(now) {
			w := heap.Pop(&pending).(*wait) //nolint:forcetypeassert
			lp.dispatch(w, nil)
			now = time.Now()
		}

		select {
		case <-lp.stopCh:
			lp.shutdown(&pending)
			return
		default:
		}

		// a completion may have re-armed
		if lp.regs.Len() > 0 {
			continue
		}

		if pending.Len() == 0 && lp.tokens.Load() == 0 {
			// out of work and nobody holds a keep-alive token
			lp.shutdown(&pending)
			return
		}

		if pending.Len() > 0 {
			timer.Reset(time.Until(pending[0].deadline))
			select {
			case <-lp.wake:
			case <-timer.C:
			case <-lp.stopCh:
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		} else {
			select {
			case <-lp.wake:
			case <-lp.stopCh:
			}
		}
	}
}

// dispatch runs a completion handler on the loop goroutine, recovering
// panics at the loop boundary so one misbehaving callback cannot kill the
// reactor.
func (lp *Loop) dispatch(w *wait, err error) {
	defer func() {
		if r := recover(); r != nil {
			lp.log.LogAttrs(context.Background(), slog.LevelError,
				"recovered panic in timer completion",
				slog.Any("panic", r),
			)
		}
	}()
	w.complete(err)
}

// shutdown stops accepting registrations and completes every remaining wait
// with [ErrLoopClosed]. Still runs on the loop goroutine.
func (lp *Loop) shutdown(pending *waitHeap) {
	lp.regMu.Lock()
	lp.accepting = false
	lp.regMu.Unlock()

	for _, w := range lp.regs.Drain() {
		heap.Push(pending, w)
	}
	for pending.Len() > 0 {
		w := heap.Pop(pending).(*wait) //nolint:forcetypeassert
		lp.dispatch(w, ErrLoopClosed)
	}
}

package sched

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/qmuntal/stateless"
)

// Timer states: a timer enters pending when armed and leaves it exactly
// once, on the loop goroutine, for one of the two terminal states.
const (
	timerStatePending = "pending"
	timerStateFired   = "fired"
	timerStateFailed  = "failed"
)

const (
	timerTriggerFire = "fire"
	timerTriggerFail = "fail"
)

// timer is a single pending expiration: the caller-supplied identifier, the
// bound action with its captured arguments, and the state machine enforcing
// the at-most-once firing contract. Its ownership is shared between the
// loop's wait registry and the completion closure; both drop it once the
// completion handler returns.
type timer struct {
	id     uint64
	delay  time.Duration
	action Callback
	args   []any
	log    *slog.Logger
	sm     *stateless.StateMachine
}

func newTimer(id uint64, delay time.Duration, action Callback, args []any, logger *slog.Logger) *timer {
	t := &timer{
		id:     id,
		delay:  delay,
		action: action,
		args:   args,
		log:    logger,
	}

	sm := stateless.NewStateMachine(timerStatePending)
	sm.SetTriggerParameters(timerTriggerFail, reflect.TypeOf((*error)(nil)).Elem())
	sm.Configure(timerStatePending).
		Permit(timerTriggerFire, timerStateFired).
		Permit(timerTriggerFail, timerStateFailed)
	sm.Configure(timerStateFired).
		OnEntry(func(_ context.Context, _ ...any) error {
			t.action(t.id, t.args...)
			return nil
		})
	sm.Configure(timerStateFailed).
		OnEntry(func(ctx context.Context, smArgs ...any) error {
			var err error
			if len(smArgs) > 0 {
				err, _ = smArgs[0].(error)
			}
			t.log.LogAttrs(ctx, slog.LevelError,
				"error waiting on timer",
				slog.Uint64("timer_id", t.id),
				slog.Any("error", err),
			)
			return nil
		})
	t.sm = sm
	return t
}

// fire invokes the timer's action.
// Firing a timer that already reached a terminal state is a no-op.
func (t *timer) fire() {
	if err := t.sm.Fire(timerTriggerFire); err != nil {
		t.log.LogAttrs(context.Background(), slog.LevelDebug,
			"discarding duplicate timer completion",
			slog.Uint64("timer_id", t.id),
			slog.Any("error", err),
		)
	}
}

// fail reports the wait failure with the timer identifier.
// The action is never invoked on this path.
func (t *timer) fail(cause error) {
	if err := t.sm.Fire(timerTriggerFail, cause); err != nil {
		t.log.LogAttrs(context.Background(), slog.LevelDebug,
			"discarding duplicate timer completion",
			slog.Uint64("timer_id", t.id),
			slog.Any("error", err),
		)
	}
}

// state returns the timer's current state, for tests and diagnostics.
func (t *timer) state() string {
	s, _ := t.sm.MustState().(string)
	return s
}

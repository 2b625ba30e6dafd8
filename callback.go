package sched

import "weak"

// Callback is the uniform expiration contract every accepted callable shape
// reduces to. The scheduler invokes it with the timer's identifier followed
// by the trailing arguments captured at scheduling time, unchanged and in
// order. Return values of the original callable, if any, are discarded by
// the adapters below.
//
// Free functions and closures with this signature are used directly;
// bound-method invocations are produced with [Bind] or [BindWeak].
type Callback func(id uint64, args ...any)

// Bind adapts a method expression plus receiver into a [Callback].
//
// The returned callback keeps target reachable until the timer fires, so it
// is safe to schedule against values the caller no longer references.
// For receivers whose lifetime must not be extended use [BindWeak].
//
//	s.ScheduleTimer(1, time.Second, sched.Bind(model, (*Model).OnTimer), 5)
func Bind[T any](target T, method func(T, uint64, ...any)) Callback {
	return func(id uint64, args ...any) {
		method(target, id, args...)
	}
}

// BindWeak adapts a method expression plus receiver into a [Callback] that
// holds the receiver through a weak pointer. Firing after the target has
// been garbage collected is a defined no-op.
func BindWeak[T any](target *T, method func(*T, uint64, ...any)) Callback {
	wp := weak.Make(target)
	return func(id uint64, args ...any) {
		t := wp.Value()
		if t == nil {
			return
		}
		method(t, id, args...)
	}
}

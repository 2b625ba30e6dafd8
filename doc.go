// Package sched implements a one-shot timer scheduling engine backed by a
// single-goroutine event loop.
//
// A [Scheduler] owns one background [Loop]. Timers are armed with
// [Scheduler.ScheduleTimer] under a caller-supplied identifier and fire at
// most once, on the loop goroutine, after their delay elapses. Expiration
// callbacks of one scheduler never run concurrently with each other, and a
// callback may arm new timers from within its own execution, including
// re-arming itself, which is the intended way to build recurring timers.
//
// There is no cancellation: once armed, a timer either fires or is abandoned
// when its scheduler shuts down. Identifiers are opaque diagnostic values
// passed through to callbacks; the package never requires them to be unique.
package sched

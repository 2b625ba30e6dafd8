package sched

import "github.com/ghettovoice/sched/internal/errorutil"

// Common errors.
const (
	ErrInvalidArgument = errorutil.ErrInvalidArgument

	// ErrLoopStarted is returned when starting a loop that already runs.
	ErrLoopStarted Error = "event loop already started"
	// ErrLoopClosed is returned when registering a wait on a loop that is
	// not running; it is also the failure passed to completion handlers of
	// waits still pending when the loop shuts down.
	ErrLoopClosed Error = "event loop closed"
	// ErrSchedulerClosed reports that the scheduler was closed before or
	// while a timer was being armed.
	ErrSchedulerClosed Error = "scheduler closed"
)

// Error represents a sched error.
// See [errorutil.Error].
type Error = errorutil.Error

// NewInvalidArgumentError creates a new error with [ErrInvalidArgument] or
// wraps provided error with [ErrInvalidArgument].
func NewInvalidArgumentError(args ...any) error {
	return errorutil.NewInvalidArgumentError(args...) //errtrace:skip
}

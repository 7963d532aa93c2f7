package dispatch

import "errors"

var (
	// ErrExecutorTimeout is the failure recorded when an executor runs past
	// the dispatcher's ceiling.
	ErrExecutorTimeout = errors.New("executor timed out")

	// ErrNotRunning is returned by Cancel for sessions without a live task.
	ErrNotRunning = errors.New("session not running")

	ErrMissingTitle = errors.New("issue title is required")

	// ErrCancelled is the failure recorded for an explicit Cancel or shutdown.
	ErrCancelled = errors.New("cancelled")
)

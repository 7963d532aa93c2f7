package session

import "errors"

var (
	// ErrUnknownSession is returned for ids that were never created or have
	// already been evicted.
	ErrUnknownSession = errors.New("unknown session")

	// ErrAlreadyAttached is returned when a second subscriber tries to attach
	// while another cursor is live.
	ErrAlreadyAttached = errors.New("already attached")

	// ErrSessionClosed is returned when attaching to a session that has been
	// closed but not yet removed from the registry.
	ErrSessionClosed = errors.New("session closed")

	// ErrCursorClosed is returned by Next after the cursor was closed.
	ErrCursorClosed = errors.New("cursor closed")
)

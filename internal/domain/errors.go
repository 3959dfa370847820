package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Pool errors
	ErrPoolClosed = errors.New("worker pool is shut down")
	ErrNilJob     = errors.New("job must not be nil")

	// Progress errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownFile       = errors.New("file is not tracked in this batch")

	// Enumeration and analysis errors
	ErrNotDirectory = errors.New("input path is not a directory")
	ErrInvalidUTF8  = errors.New("stream did not contain valid UTF-8")

	// Report errors
	ErrUnknownFormat = errors.New("unknown report format")

	// Run history errors
	ErrRunNotFound  = errors.New("run not found")
	ErrUnknownStore = errors.New("unknown store driver")
)

package processor

import "sync/atomic"

// CancelFlag is a batch-wide cancellation request. Workers read it only
// when a file starts; files already being analyzed run to completion.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel requests cancellation of every file that has not started yet.
func (c *CancelFlag) Cancel() { c.set.Store(true) }

// Reset clears the flag so the next batch can run.
func (c *CancelFlag) Reset() { c.set.Store(false) }

// Cancelled reports whether cancellation was requested.
func (c *CancelFlag) Cancelled() bool { return c.set.Load() }

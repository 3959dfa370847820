// Package progress tracks the lifecycle status of every file in a batch.
// All state sits behind one mutex; readers get copies.
package progress

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/tutu-network/pfp/internal/domain"
)

// Snapshot is a consistent copy of the tracker state.
type Snapshot struct {
	Total     int                          `json:"total"`
	Completed int                          `json:"completed"`
	Cancelled int                          `json:"cancelled"`
	Failed    int                          `json:"failed"`
	Statuses  map[string]domain.FileStatus `json:"statuses"`
}

// Settled is the number of files in a terminal status.
func (s Snapshot) Settled() int { return s.Completed + s.Cancelled }

// Percent returns settled/total in the range [0,100].
func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Settled()) / float64(s.Total) * 100
}

// Observer is called after every accepted transition, outside the lock.
type Observer func(file string, from, to domain.FileStatus)

// Tracker holds per-file statuses and the completed counter.
//
// Completed counts files that finished analysis (Done or Error).
// Cancelled files are terminal but do not count toward Completed.
type Tracker struct {
	mu        sync.Mutex
	total     int
	completed int
	cancelled int
	failed    int
	statuses  map[string]domain.FileStatus
	observers []Observer

	done     chan struct{}
	doneOnce sync.Once
}

// New seeds a tracker with every file in Pending.
// Duplicate identifiers collapse to one entry.
func New(files []string) *Tracker {
	t := &Tracker{
		statuses: make(map[string]domain.FileStatus, len(files)),
		done:     make(chan struct{}),
	}
	for _, f := range files {
		t.statuses[f] = domain.StatusPending
	}
	t.total = len(t.statuses)
	if t.total == 0 {
		t.closeDone()
	}
	return t
}

// Observe registers fn to be told about every transition.
func (t *Tracker) Observe(fn Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Start moves file from Pending to Processing.
func (t *Tracker) Start(file string) error {
	return t.transition(file, domain.StatusProcessing)
}

// Cancel moves file from Processing to Cancelled. Completed is untouched.
func (t *Tracker) Cancel(file string) error {
	return t.transition(file, domain.StatusCancelled)
}

// Finish increments Completed and sets Done, or Error when failed is
// true, as a single step under the lock.
func (t *Tracker) Finish(file string, failed bool) error {
	to := domain.StatusDone
	if failed {
		to = domain.StatusError
	}
	return t.transition(file, to)
}

func (t *Tracker) transition(file string, to domain.FileStatus) error {
	t.mu.Lock()
	from, ok := t.statuses[file]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%s: %w", file, domain.ErrUnknownFile)
	}
	if !domain.CanTransition(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("%s: %s → %s: %w", file, from, to, domain.ErrInvalidTransition)
	}

	t.statuses[file] = to
	switch to {
	case domain.StatusDone:
		t.completed++
	case domain.StatusError:
		t.completed++
		t.failed++
	case domain.StatusCancelled:
		t.cancelled++
	}
	settled := t.completed+t.cancelled == t.total
	observers := t.observers
	t.mu.Unlock()

	for _, fn := range observers {
		fn(file, from, to)
	}
	if settled {
		t.closeDone()
	}
	return nil
}

func (t *Tracker) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

// Status returns the current status of file.
func (t *Tracker) Status(file string) (domain.FileStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[file]
	return s, ok
}

// Completed returns the number of files that finished analysis.
func (t *Tracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Total returns the number of tracked files.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Settled returns the number of files in a terminal status.
func (t *Tracker) Settled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed + t.cancelled
}

// Snapshot returns a deep copy of the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Total:     t.total,
		Completed: t.completed,
		Cancelled: t.cancelled,
		Failed:    t.failed,
		Statuses:  maps.Clone(t.statuses),
	}
}

// Done is closed once every tracked file is terminal.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Wait blocks until every file is terminal or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/pfp/internal/app/progress"
	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/infra/metrics"
	"github.com/tutu-network/pfp/internal/infra/pool"
)

// Executor accepts jobs for asynchronous execution. *pool.Pool satisfies it.
type Executor interface {
	Execute(job pool.Job) error
}

// Summary describes a finished batch.
type Summary struct {
	RunID     string
	Total     int
	Completed int
	Failed    int
	Cancelled int
	StartedAt time.Time
	Elapsed   time.Duration
	Results   []domain.FileAnalysis
	Progress  progress.Snapshot
}

// Run converts the summary into the stored run shape.
func (s *Summary) Run(root string, workers int) domain.Run {
	return domain.Run{
		ID:         s.RunID,
		Root:       root,
		Workers:    workers,
		Total:      s.Total,
		Completed:  s.Completed,
		Failed:     s.Failed,
		Cancelled:  s.Cancelled,
		StartedAt:  s.StartedAt,
		FinishedAt: s.StartedAt.Add(s.Elapsed),
		Elapsed:    s.Elapsed,
	}
}

// BatchOption configures ProcessFiles.
type BatchOption func(*batch)

type batch struct {
	runID    string
	results  *Results
	onResult []func(runID string, a domain.FileAnalysis)
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) BatchOption {
	return func(b *batch) { b.runID = id }
}

// WithResults collects records into r, letting callers read partial
// results while the batch is running.
func WithResults(r *Results) BatchOption {
	return func(b *batch) { b.results = r }
}

// OnResult registers fn to run on the worker after each record is
// aggregated. fn must be safe for concurrent use.
func OnResult(fn func(runID string, a domain.FileAnalysis)) BatchOption {
	return func(b *batch) { b.onResult = append(b.onResult, fn) }
}

// ProcessFiles submits one job per file to exec and blocks until every
// submitted job has produced its record. Every file must already be
// tracked by the processor's tracker.
//
// If ctx ends first the cancel flag is raised: files not yet started
// end Cancelled, files in flight finish normally. A submission failure
// also raises the flag: the files left unsubmitted are recorded as
// Cancelled on the caller's goroutine, and the error is returned after
// the submitted jobs drain.
func (p *Processor) ProcessFiles(ctx context.Context, files []string, exec Executor, opts ...BatchOption) (*Summary, error) {
	b := &batch{}
	for _, opt := range opts {
		opt(b)
	}
	if b.runID == "" {
		b.runID = uuid.NewString()
	}
	if b.results == nil {
		b.results = NewResults(len(files))
	}

	stop := context.AfterFunc(ctx, p.cancel.Cancel)
	defer stop()

	started := time.Now()
	log := p.log.With("run", b.runID)
	log.Info("batch started", "files", len(files))

	handle := func(f string) {
		a := p.ProcessFile(ctx, f)
		b.results.Append(a)
		for _, fn := range b.onResult {
			fn(b.runID, a)
		}
	}

	var wg sync.WaitGroup
	var submitErr error
	unique := dedupe(files)
	for i, f := range unique {
		wg.Add(1)
		err := exec.Execute(func() {
			defer wg.Done()
			handle(f)
		})
		if err != nil {
			wg.Done()
			p.cancel.Cancel()
			submitErr = fmt.Errorf("submit %s: %w", f, err)
			// The flag is raised, so these end Cancelled without analysis.
			for _, rest := range unique[i:] {
				handle(rest)
			}
			break
		}
	}
	wg.Wait()

	elapsed := time.Since(started)
	snap := p.tracker.Snapshot()
	s := &Summary{
		RunID:     b.runID,
		Total:     snap.Total,
		Completed: snap.Completed,
		Failed:    snap.Failed,
		Cancelled: snap.Cancelled,
		StartedAt: started,
		Elapsed:   elapsed,
		Results:   b.results.Snapshot(),
		Progress:  snap,
	}

	metrics.RunsCompleted.Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())
	log.Info("batch finished",
		"completed", s.Completed, "failed", s.Failed, "cancelled", s.Cancelled,
		"elapsed", elapsed)

	return s, submitErr
}

func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

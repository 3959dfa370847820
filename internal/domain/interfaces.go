package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// Infrastructure implements these; the application layer depends on them.

// Enumerator produces the identifiers of a batch.
type Enumerator interface {
	Walk(root string) ([]string, error)
}

// Analyzer computes content metrics for one file.
type Analyzer interface {
	Analyze(path string) (FileStats, error)
}

// ResultPublisher fans a finished record out to other systems.
type ResultPublisher interface {
	Publish(ctx context.Context, runID string, a FileAnalysis) error
}

// RunStore persists finished batches for later inspection.
type RunStore interface {
	SaveRun(ctx context.Context, run Run, results []FileAnalysis) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	RunResults(ctx context.Context, id string) ([]FileAnalysis, error)
	Ping() error
	Close() error
}

package processor

import (
	"slices"
	"sync"

	"github.com/tutu-network/pfp/internal/domain"
)

// Results collects one record per file from concurrent workers.
// Records are kept in completion order.
type Results struct {
	mu      sync.Mutex
	records []domain.FileAnalysis
}

// NewResults returns an empty aggregator sized for n records.
func NewResults(n int) *Results {
	return &Results{records: make([]domain.FileAnalysis, 0, n)}
}

// Append adds a record.
func (r *Results) Append(a domain.FileAnalysis) {
	r.mu.Lock()
	r.records = append(r.records, a)
	r.mu.Unlock()
}

// Len returns the number of records collected so far.
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Snapshot returns a copy of the records collected so far.
func (r *Results) Snapshot() []domain.FileAnalysis {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

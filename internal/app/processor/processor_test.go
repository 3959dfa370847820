package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/pfp/internal/app/progress"
	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/infra/analyzer"
	"github.com/tutu-network/pfp/internal/infra/pool"
)

func writeFiles(t *testing.T, contents map[string]string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, body := range contents {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		paths = append(paths, path)
	}
	return paths
}

func byName(results []domain.FileAnalysis) map[string]domain.FileAnalysis {
	m := make(map[string]domain.FileAnalysis, len(results))
	for _, r := range results {
		m[filepath.Base(r.Filename)] = r
	}
	return m
}

type countingAnalyzer struct {
	calls atomic.Int64
	inner domain.Analyzer
}

func (c *countingAnalyzer) Analyze(path string) (domain.FileStats, error) {
	c.calls.Add(1)
	return c.inner.Analyze(path)
}

type panicAnalyzer struct{}

func (panicAnalyzer) Analyze(string) (domain.FileStats, error) { panic("corrupt input") }

// ─── ProcessFile ────────────────────────────────────────────────────────────

func TestProcessFile_Done(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.txt": "hello world\n"})
	tr := progress.New(paths)
	p := New(tr, nil, analyzer.New())

	a := p.ProcessFile(context.Background(), paths[0])

	assert.Equal(t, domain.StatusDone, a.Status)
	assert.Empty(t, a.Errors)
	assert.Equal(t, 2, a.Stats.WordCount)
	assert.Equal(t, 1, a.Stats.LineCount)
	assert.Equal(t, int64(12), a.Stats.SizeBytes)

	st, _ := tr.Status(paths[0])
	assert.Equal(t, domain.StatusDone, st)
	assert.Equal(t, 1, tr.Completed())
}

func TestProcessFile_InvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.dat")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00}, 0644))

	p := New(progress.New([]string{path}), nil, analyzer.New())
	a := p.ProcessFile(context.Background(), path)

	require.Len(t, a.Errors, 1)
	assert.Equal(t, domain.ErrorKindUTF8, a.Errors[0].Kind)
	assert.Equal(t, domain.StatusError, a.Status)
	assert.Zero(t, a.Stats.SizeBytes)
}

func TestProcessFile_AnalyzerPanic(t *testing.T) {
	tr := progress.New([]string{"x"})
	p := New(tr, nil, panicAnalyzer{})

	a := p.ProcessFile(context.Background(), "x")

	require.Len(t, a.Errors, 1)
	assert.Equal(t, domain.ErrorKindPanic, a.Errors[0].Kind)
	assert.Contains(t, a.Errors[0].Message, "corrupt input")
	st, _ := tr.Status("x")
	assert.Equal(t, domain.StatusError, st)
}

func TestProcessFile_UntrackedFile(t *testing.T) {
	p := New(progress.New(nil), nil, analyzer.New())

	a := p.ProcessFile(context.Background(), "ghost.txt")

	assert.Equal(t, domain.StatusError, a.Status)
	require.Len(t, a.Errors, 1)
	assert.Equal(t, domain.ErrorKindOther, a.Errors[0].Kind)
}

func TestClassify(t *testing.T) {
	_, statErr := os.Open(filepath.Join(t.TempDir(), "nope"))
	tests := []struct {
		err  error
		want domain.ErrorKind
	}{
		{statErr, domain.ErrorKindIO},
		{fmt.Errorf("decode: %w", domain.ErrInvalidUTF8), domain.ErrorKindUTF8},
		{&analyzerPanic{value: "x"}, domain.ErrorKindPanic},
		{errors.New("something else"), domain.ErrorKindOther},
	}
	for _, tt := range tests {
		if got := classify("f", tt.err).Kind; got != tt.want {
			t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

// ─── Batches ────────────────────────────────────────────────────────────────

func TestProcessFiles_ThreeFilesTwoWorkers(t *testing.T) {
	paths := writeFiles(t, map[string]string{
		"a.txt": "one\n",
		"b.txt": "two words\n",
		"c.txt": "three little words\nsecond line\n",
	})
	tr := progress.New(paths)
	p := New(tr, nil, analyzer.New())
	pl := pool.New(2)
	defer pl.Shutdown()

	s, err := p.ProcessFiles(context.Background(), paths, pl)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 3, s.Completed)
	require.Len(t, s.Results, 3)
	for _, st := range tr.Snapshot().Statuses {
		assert.Equal(t, domain.StatusDone, st)
	}

	r := byName(s.Results)
	assert.Equal(t, 1, r["a.txt"].Stats.WordCount)
	assert.Equal(t, 2, r["b.txt"].Stats.WordCount)
	assert.Equal(t, 5, r["c.txt"].Stats.WordCount)
	assert.Equal(t, 2, r["c.txt"].Stats.LineCount)
	assert.NotEmpty(t, s.RunID)
}

func TestProcessFiles_MissingFile(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.txt": "fine\n"})
	missing := filepath.Join(filepath.Dir(paths[0]), "gone.txt")
	paths = append(paths, missing)

	tr := progress.New(paths)
	p := New(tr, nil, analyzer.New())
	pl := pool.New(2)
	defer pl.Shutdown()

	s, err := p.ProcessFiles(context.Background(), paths, pl)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Failed)

	r := byName(s.Results)
	require.Len(t, r["gone.txt"].Errors, 1)
	assert.Equal(t, domain.ErrorKindIO, r["gone.txt"].Errors[0].Kind)
	st, _ := tr.Status(missing)
	assert.Equal(t, domain.StatusError, st)
}

func TestProcessFiles_CancelledBeforeStart(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	tr := progress.New(paths)
	cancel := &CancelFlag{}
	cancel.Cancel()
	an := &countingAnalyzer{inner: analyzer.New()}
	p := New(tr, cancel, an)
	pl := pool.New(2)
	defer pl.Shutdown()

	s, err := p.ProcessFiles(context.Background(), paths, pl)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Completed)
	assert.Equal(t, 3, s.Cancelled)
	assert.Zero(t, an.calls.Load(), "analyzer must not run for cancelled files")
	require.Len(t, s.Results, 3)
	for _, a := range s.Results {
		assert.Equal(t, domain.StatusCancelled, a.Status)
		assert.Empty(t, a.Errors)
		assert.Zero(t, a.Stats.WordCount)
		assert.Empty(t, a.Stats.CharFrequencies)
	}
	for _, st := range tr.Snapshot().Statuses {
		assert.Equal(t, domain.StatusCancelled, st)
	}
}

func TestProcessFiles_Empty(t *testing.T) {
	tr := progress.New(nil)
	p := New(tr, nil, analyzer.New())
	pl := pool.New(4)
	defer pl.Shutdown()

	s, err := p.ProcessFiles(context.Background(), nil, pl)
	require.NoError(t, err)

	assert.Zero(t, s.Total)
	assert.Empty(t, s.Results)
	select {
	case <-tr.Done():
	default:
		t.Fatal("tracker not done for empty batch")
	}
}

func TestProcessFiles_OneRecordPerFile(t *testing.T) {
	contents := make(map[string]string)
	for i := range 120 {
		contents[fmt.Sprintf("f%03d.txt", i)] = fmt.Sprintf("file %d\n", i)
	}
	paths := writeFiles(t, contents)

	for _, workers := range []int{1, 3, 8} {
		tr := progress.New(paths)
		p := New(tr, nil, analyzer.New())
		pl := pool.New(workers)

		var hooked atomic.Int64
		s, err := p.ProcessFiles(context.Background(), append(paths, paths[0]), pl,
			OnResult(func(string, domain.FileAnalysis) { hooked.Add(1) }))
		pl.Shutdown()
		require.NoError(t, err)

		seen := make(map[string]int)
		for _, a := range s.Results {
			seen[a.Filename]++
		}
		assert.Len(t, seen, len(paths), "workers=%d", workers)
		for f, n := range seen {
			assert.Equal(t, 1, n, "%s recorded %d times", f, n)
		}
		assert.Equal(t, int64(len(paths)), hooked.Load())
		assert.Equal(t, len(paths), s.Completed)
	}
}

func TestProcessFiles_ContextCancel(t *testing.T) {
	contents := make(map[string]string)
	for i := range 20 {
		contents[fmt.Sprintf("f%02d.txt", i)] = "x"
	}
	paths := writeFiles(t, contents)
	tr := progress.New(paths)
	p := New(tr, nil, analyzer.New())

	// One worker held on a gate so nothing starts before cancellation.
	pl := pool.New(1)
	defer pl.Shutdown()
	gate := make(chan struct{})
	require.NoError(t, pl.Execute(func() { <-gate }))

	ctx, cancel := context.WithCancel(context.Background())
	var s *Summary
	var err error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s, err = p.ProcessFiles(ctx, paths, pl)
	}()

	cancel()
	require.Eventually(t, p.CancelFlag().Cancelled, timeoutShort, tick)
	close(gate)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, 20, s.Cancelled)
	assert.Equal(t, 0, s.Completed)
	assert.Len(t, s.Results, 20)
}

func TestProcessFiles_SubmitFailure(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	p := New(progress.New(paths), nil, analyzer.New())
	pl := pool.New(1)
	pl.Shutdown()

	s, err := p.ProcessFiles(context.Background(), paths, pl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPoolClosed))
	assert.True(t, p.CancelFlag().Cancelled())
	require.Len(t, s.Results, 2)
	for _, a := range s.Results {
		assert.Equal(t, domain.StatusCancelled, a.Status, a.Filename)
	}
	assert.Equal(t, s.Total, s.Progress.Settled())
}

// rejectAfter accepts the first n jobs and then behaves like a closed pool.
type rejectAfter struct {
	inner Executor
	n     int
}

func (e *rejectAfter) Execute(job pool.Job) error {
	if e.n == 0 {
		return domain.ErrPoolClosed
	}
	e.n--
	return e.inner.Execute(job)
}

func TestProcessFiles_SubmitFailureSettlesEveryFile(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		paths = append(paths, path)
	}

	tracker := progress.New(paths)
	an := &countingAnalyzer{inner: analyzer.New()}
	p := New(tracker, nil, an)
	pl := pool.New(1)
	defer pl.Shutdown()

	s, err := p.ProcessFiles(context.Background(), paths, &rejectAfter{inner: pl, n: 1})
	require.ErrorIs(t, err, domain.ErrPoolClosed)

	ctx, cancel := context.WithTimeout(context.Background(), timeoutShort)
	defer cancel()
	require.NoError(t, tracker.Wait(ctx), "tracker must settle after a submit failure")

	snap := tracker.Snapshot()
	assert.Equal(t, 3, snap.Settled())
	for _, f := range paths {
		assert.True(t, snap.Statuses[f].IsTerminal(), "%s = %s", f, snap.Statuses[f])
	}
	assert.Equal(t, domain.StatusCancelled, snap.Statuses[paths[1]])
	assert.Equal(t, domain.StatusCancelled, snap.Statuses[paths[2]])
	assert.LessOrEqual(t, an.calls.Load(), int64(1), "unsubmitted files must not be analyzed")

	require.Len(t, s.Results, 3)
	got := byName(s.Results)
	assert.Equal(t, domain.StatusCancelled, got["b.txt"].Status)
	assert.Equal(t, domain.StatusCancelled, got["c.txt"].Status)
	assert.Empty(t, got["c.txt"].Errors)
}

// ─── Aggregator ─────────────────────────────────────────────────────────────

func TestResults_ConcurrentAppend(t *testing.T) {
	r := NewResults(0)
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Append(domain.FileAnalysis{Filename: fmt.Sprint(i)})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, r.Len())
	snap := r.Snapshot()
	snap[0].Filename = "mutated"
	assert.NotEqual(t, "mutated", r.Snapshot()[0].Filename)
}

func TestCancelFlag(t *testing.T) {
	var c CancelFlag
	assert.False(t, c.Cancelled())
	c.Cancel()
	assert.True(t, c.Cancelled())
	c.Reset()
	assert.False(t, c.Cancelled())
}

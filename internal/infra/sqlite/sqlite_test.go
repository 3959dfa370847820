package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/pfp/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id string, started time.Time) (domain.Run, []domain.FileAnalysis) {
	run := domain.Run{
		ID:         id,
		Root:       "/data",
		Workers:    4,
		Total:      2,
		Completed:  2,
		Failed:     1,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Elapsed:    time.Second,
	}
	results := []domain.FileAnalysis{
		{
			Filename: "/data/a.txt",
			Status:   domain.StatusDone,
			Stats: domain.FileStats{
				WordCount: 2, LineCount: 1, SizeBytes: 8,
				CharFrequencies: map[rune]int{'h': 1, 'i': 2},
			},
			ProcessingTime: time.Millisecond,
		},
		{
			Filename:       "/data/b.bin",
			Status:         domain.StatusError,
			Errors:         []domain.ProcessingError{{Kind: domain.ErrorKindUTF8, Message: "invalid"}},
			ProcessingTime: 2 * time.Millisecond,
		},
	}
	return run, results
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "history.db")); os.IsNotExist(err) {
		t.Error("history.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	for range 2 {
		db, err := Open(dir)
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		db.Close()
	}
}

// ─── Run History ────────────────────────────────────────────────────────────

func TestSaveRun_GetRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	started := time.Unix(1_700_000_000, 0)
	run, results := sampleRun("run-1", started)

	if err := db.SaveRun(ctx, run, results); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}

	got, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.Root != "/data" || got.Workers != 4 || got.Failed != 1 {
		t.Errorf("GetRun() = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Elapsed != time.Second {
		t.Errorf("Elapsed = %v, want 1s", got.Elapsed)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetRun(context.Background(), "missing")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("GetRun(missing) = %v, want ErrRunNotFound", err)
	}
}

func TestRunResults_Order(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	run, results := sampleRun("run-1", time.Now())
	if err := db.SaveRun(ctx, run, results); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}

	got, err := db.RunResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunResults() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RunResults() = %d records, want 2", len(got))
	}
	if got[0].Filename != "/data/a.txt" || got[0].Stats.CharFrequencies['i'] != 2 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Status != domain.StatusError || len(got[1].Errors) != 1 {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestRunResults_UnknownRun(t *testing.T) {
	db := newTestDB(t)
	_, err := db.RunResults(context.Background(), "nope")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("RunResults(nope) = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		run, results := sampleRun(id, base.Add(time.Duration(i)*time.Minute))
		if err := db.SaveRun(ctx, run, results); err != nil {
			t.Fatalf("SaveRun(%s) error: %v", id, err)
		}
	}

	runs, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("ListRuns(2) = %v", runs)
	}

	all, _ := db.ListRuns(ctx, 0)
	if len(all) != 3 {
		t.Errorf("ListRuns(0) = %d runs, want 3", len(all))
	}
}

func TestSaveRun_DuplicateRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	run, results := sampleRun("dup", time.Now())
	if err := db.SaveRun(ctx, run, results); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}
	if err := db.SaveRun(ctx, run, results); err == nil {
		t.Fatal("second SaveRun() with same ID should fail")
	}

	got, _ := db.RunResults(ctx, "dup")
	if len(got) != 2 {
		t.Errorf("RunResults() = %d records after failed save, want 2", len(got))
	}
}

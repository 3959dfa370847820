package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFileMetrics_Registered(t *testing.T) {
	FilesProcessed.WithLabelValues("Done").Inc()
	FileErrors.WithLabelValues("io").Inc()
	FileDuration.Observe(0.002)
	BytesAnalyzed.Add(128)
	FilesInFlight.Set(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"pfp_files_processed_total",
		"pfp_file_errors_total",
		"pfp_file_duration_seconds",
		"pfp_bytes_analyzed_total",
		"pfp_files_in_flight",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestPoolMetrics(t *testing.T) {
	before := testutil.ToFloat64(JobPanics)
	JobPanics.Inc()
	if got := testutil.ToFloat64(JobPanics); got != before+1 {
		t.Errorf("JobPanics = %v, want %v", got, before+1)
	}

	QueueDepth.Set(7)
	if got := testutil.ToFloat64(QueueDepth); got != 7 {
		t.Errorf("QueueDepth = %v, want 7", got)
	}
	QueueDepth.Set(0)
}

func TestRunMetrics(t *testing.T) {
	before := testutil.ToFloat64(RunsCompleted)
	RunsCompleted.Inc()
	RunDuration.Observe(1.25)

	if got := testutil.ToFloat64(RunsCompleted); got != before+1 {
		t.Errorf("RunsCompleted = %v, want %v", got, before+1)
	}
}

// Package processor runs per-file analysis on a worker pool, keeps the
// progress tracker current, and aggregates the results of a batch.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutu-network/pfp/internal/app/progress"
	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/infra/metrics"
)

const instrumentationName = "github.com/tutu-network/pfp/internal/app/processor"

// Processor analyzes single files and records their lifecycle.
// It is safe for concurrent use by many workers.
type Processor struct {
	tracker  *progress.Tracker
	cancel   *CancelFlag
	analyzer domain.Analyzer
	log      *slog.Logger

	tracer   trace.Tracer
	analyzed metric.Int64Counter
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Processor) { p.tracer = tp.Tracer(instrumentationName) }
}

// New returns a Processor reporting to tracker. A nil cancel flag means
// the batch cannot be cancelled.
func New(tracker *progress.Tracker, cancel *CancelFlag, analyzer domain.Analyzer, opts ...Option) *Processor {
	if cancel == nil {
		cancel = &CancelFlag{}
	}
	p := &Processor{
		tracker:  tracker,
		cancel:   cancel,
		analyzer: analyzer,
		log:      slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "processor")

	counter, err := otel.Meter(instrumentationName).Int64Counter("pfp.files.analyzed",
		metric.WithDescription("Files that reached a terminal status."))
	if err != nil {
		p.log.Warn("otel counter unavailable", "err", err)
	}
	p.analyzed = counter
	return p
}

// Tracker returns the progress tracker this processor reports to.
func (p *Processor) Tracker() *progress.Tracker { return p.tracker }

// CancelFlag returns the flag checked at the start of every file.
func (p *Processor) CancelFlag() *CancelFlag { return p.cancel }

// ProcessFile analyzes one file and returns its record. Failures to read
// or decode the file are carried in the record, never returned.
//
// A file that starts after cancellation is marked Cancelled with empty
// stats and does not count toward the completed total.
func (p *Processor) ProcessFile(ctx context.Context, path string) domain.FileAnalysis {
	ctx, span := p.tracer.Start(ctx, "process_file", trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	a := domain.FileAnalysis{
		Filename: path,
		Status:   domain.StatusProcessing,
	}

	if err := p.tracker.Start(path); err != nil {
		p.log.Error("cannot start file", "file", path, "err", err)
		span.SetStatus(codes.Error, err.Error())
		a.Status = domain.StatusError
		a.Errors = append(a.Errors, domain.ProcessingError{Kind: domain.ErrorKindOther, Message: err.Error()})
		return a
	}

	start := time.Now()

	if p.cancel.Cancelled() {
		if err := p.tracker.Cancel(path); err != nil {
			p.log.Error("cannot cancel file", "file", path, "err", err)
		}
		a.Status = domain.StatusCancelled
		a.ProcessingTime = time.Since(start)
		span.SetAttributes(attribute.String("file.status", a.Status.String()))
		p.record(ctx, a)
		return a
	}

	metrics.FilesInFlight.Inc()
	stats, err := p.analyze(path)
	metrics.FilesInFlight.Dec()

	if err != nil {
		pe := classify(path, err)
		a.Errors = append(a.Errors, pe)
		span.RecordError(err)
		span.SetStatus(codes.Error, pe.Message)
		p.log.Debug("file failed", "file", path, "kind", pe.Kind, "err", err)
	} else {
		a.Stats = stats
	}
	a.ProcessingTime = time.Since(start)

	if err := p.tracker.Finish(path, a.Failed()); err != nil {
		p.log.Error("cannot finish file", "file", path, "err", err)
	}
	a.Status = domain.StatusDone
	if a.Failed() {
		a.Status = domain.StatusError
	}

	span.SetAttributes(
		attribute.String("file.status", a.Status.String()),
		attribute.Int64("file.size_bytes", a.Stats.SizeBytes),
	)
	p.record(ctx, a)
	return a
}

// analyze calls the analyzer, turning a panic into an error so the
// file still gets a record and a terminal status.
func (p *Processor) analyze(path string) (stats domain.FileStats, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &analyzerPanic{value: v}
		}
	}()
	return p.analyzer.Analyze(path)
}

type analyzerPanic struct{ value any }

func (e *analyzerPanic) Error() string { return fmt.Sprintf("analyzer panicked: %v", e.value) }

func classify(path string, err error) domain.ProcessingError {
	var ap *analyzerPanic
	var pe *fs.PathError
	switch {
	case errors.As(err, &ap):
		return domain.ProcessingError{Kind: domain.ErrorKindPanic, Message: fmt.Sprintf("Failed to process file %s: %v", path, err)}
	case errors.Is(err, domain.ErrInvalidUTF8):
		return domain.ProcessingError{Kind: domain.ErrorKindUTF8, Message: fmt.Sprintf("Failed to read file %s: %v", path, err)}
	case errors.As(err, &pe):
		return domain.ProcessingError{Kind: domain.ErrorKindIO, Message: fmt.Sprintf("Failed to read file %s: %v", path, pe.Err)}
	default:
		return domain.ProcessingError{Kind: domain.ErrorKindOther, Message: fmt.Sprintf("Failed to read file %s: %v", path, err)}
	}
}

func (p *Processor) record(ctx context.Context, a domain.FileAnalysis) {
	status := a.Status.String()
	metrics.FilesProcessed.WithLabelValues(status).Inc()
	if a.Status != domain.StatusCancelled {
		metrics.FileDuration.Observe(a.ProcessingTime.Seconds())
	}
	for _, e := range a.Errors {
		metrics.FileErrors.WithLabelValues(string(e.Kind)).Inc()
	}
	if !a.Failed() {
		metrics.BytesAnalyzed.Add(float64(a.Stats.SizeBytes))
	}
	if p.analyzed != nil {
		p.analyzed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

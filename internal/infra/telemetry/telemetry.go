// Package telemetry configures structured logging and, optionally,
// OpenTelemetry traces, metrics and logs exported as JSON lines.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/tutu-network/pfp"

// Config controls logging and OpenTelemetry export.
type Config struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is text or json for the stderr handler.
	Format string
	// LogOutput receives stderr-style logs. Defaults to os.Stderr.
	LogOutput io.Writer

	// OTel enables the OpenTelemetry SDK. Logs then go through the
	// otelslog bridge instead of LogOutput.
	OTel bool
	// OTelOutput receives exported spans, metrics and log records.
	OTelOutput io.Writer
	// MetricInterval is the metric export period. Defaults to 10s.
	MetricInterval time.Duration
}

// Telemetry holds the configured providers.
type Telemetry struct {
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider

	shutdownFuncs []func(context.Context) error
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewLogger builds the plain stderr logger.
func NewLogger(cfg Config) *slog.Logger {
	w := cfg.LogOutput
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup builds the logger and, when enabled, installs global OpenTelemetry
// providers. Callers must call Shutdown to flush exporters.
func Setup(cfg Config) (*Telemetry, error) {
	t := &Telemetry{
		Logger:         NewLogger(cfg),
		TracerProvider: noop.NewTracerProvider(),
	}
	if !cfg.OTel {
		return t, nil
	}

	var out io.Writer = os.Stdout
	if cfg.OTelOutput != nil {
		out = cfg.OTelOutput
	}
	// Three exporters flush from their own goroutines.
	out = &lockedWriter{w: out}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(time.Second)))
	t.shutdownFuncs = append(t.shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)
	t.TracerProvider = tp

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("metric exporter: %w", err), t.Shutdown(context.Background()))
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))))
	t.shutdownFuncs = append(t.shutdownFuncs, mp.Shutdown)
	otel.SetMeterProvider(mp)

	logExp, err := stdoutlog.New(stdoutlog.WithWriter(out))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("log exporter: %w", err), t.Shutdown(context.Background()))
	}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)))
	t.shutdownFuncs = append(t.shutdownFuncs, lp.Shutdown)
	global.SetLoggerProvider(lp)

	t.Logger = otelslog.NewLogger(instrumentationName, otelslog.WithLoggerProvider(lp))
	return t, nil
}

// Shutdown flushes and stops every provider Setup installed.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	for i := len(t.shutdownFuncs) - 1; i >= 0; i-- {
		err = errors.Join(err, t.shutdownFuncs[i](ctx))
	}
	t.shutdownFuncs = nil
	return err
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

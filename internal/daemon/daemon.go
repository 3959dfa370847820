package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/pfp/internal/api"
	"github.com/tutu-network/pfp/internal/app/processor"
	"github.com/tutu-network/pfp/internal/app/progress"
	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/health"
	"github.com/tutu-network/pfp/internal/infra/analyzer"
	"github.com/tutu-network/pfp/internal/infra/bus"
	"github.com/tutu-network/pfp/internal/infra/pool"
	"github.com/tutu-network/pfp/internal/infra/postgres"
	"github.com/tutu-network/pfp/internal/infra/report"
	"github.com/tutu-network/pfp/internal/infra/sqlite"
	"github.com/tutu-network/pfp/internal/infra/telemetry"
	"github.com/tutu-network/pfp/internal/infra/walker"
)

// Daemon is the pfp runtime. It wires together all services.
type Daemon struct {
	Config    Config
	Log       *slog.Logger
	Telemetry *telemetry.Telemetry
	Store     domain.RunStore // nil when history is disabled
	Bus       *bus.Client     // nil when events are disabled
	Health    *health.Checker
	Server    *api.Server

	closers []io.Closer
}

// New loads .env and the config file, then wires every service.
func New(ctx context.Context, configPath string) (*Daemon, error) {
	LoadEnv()
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	d := &Daemon{Config: cfg}

	telCfg := telemetry.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OTel:   cfg.Logging.OTel,
	}
	if cfg.Logging.OTel {
		f, err := openAppend(cfg.Logging.OTelFile)
		if err != nil {
			return nil, fmt.Errorf("open telemetry output: %w", err)
		}
		d.closers = append(d.closers, f)
		telCfg.OTelOutput = f
	}
	tel, err := telemetry.Setup(telCfg)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	d.Telemetry = tel
	d.Log = tel.Logger.With("component", "daemon")

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open run history: %w", err)
	}
	d.Store = store

	if cfg.Events.NATSURL != "" {
		c, err := bus.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			// Events are best effort; the batch still runs without them.
			d.Log.Warn("result events disabled", "err", err)
		} else {
			d.Bus = c
		}
	}

	d.Health = health.NewChecker(cfg.Report.Path)
	if d.Store != nil {
		d.Health.Add("store", d.Store)
	}
	if d.Bus != nil {
		d.Health.Add("nats", d.Bus)
	}

	d.Server = api.NewServer(d.Store, d.Health, tel.Logger)
	d.Server.EnableMetrics()

	return d, nil
}

func openStore(ctx context.Context, cfg StoreConfig) (domain.RunStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		dir := cfg.Dir
		if dir == "" {
			dir = pfpHome()
		}
		return sqlite.Open(dir)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Driver, domain.ErrUnknownStore)
	}
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
}

// ─── Batches ────────────────────────────────────────────────────────────────

// Enumerate lists the files a batch over root would process.
func (d *Daemon) Enumerate(root string) ([]string, error) {
	w := walker.New(d.Log)
	w.Extensions = d.Config.Walk.Extensions
	w.SkipHidden = d.Config.Walk.SkipHidden
	return w.Walk(root)
}

// BatchRequest describes one batch run.
type BatchRequest struct {
	Root    string
	Files   []string
	Workers int

	ReportPath   string
	ReportFormat report.Format

	// Listen, when set, serves the status API for the duration of the run.
	Listen string

	// OnProgress is called every ProgressInterval and once at the end.
	OnProgress       func(progress.Snapshot)
	ProgressInterval time.Duration
}

// BatchResult is the outcome of RunBatch. ReportErr and StoreErr are
// reported to the user but do not fail the run.
type BatchResult struct {
	Summary   *processor.Summary
	Workers   int
	ReportErr error
	StoreErr  error
}

// RunBatch processes req.Files on a fresh pool, writes the report, and
// records the run. Cancelling ctx stops files that have not started.
func (d *Daemon) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	workers := req.Workers
	if workers < 1 {
		workers = d.Config.Workers.Count
	}
	format := req.ReportFormat
	if format == "" {
		format = report.FormatFor(req.ReportPath)
	}

	// Bind before any file is touched so a bad address fails the run
	// instead of cancelling it halfway.
	var ln net.Listener
	if req.Listen != "" {
		l, err := net.Listen("tcp", req.Listen)
		if err != nil {
			return nil, fmt.Errorf("status api: %w", err)
		}
		ln = l
	}

	tracker := progress.New(req.Files)
	flag := &processor.CancelFlag{}
	an := &analyzer.Text{MaxBytes: d.Config.Walk.MaxFileBytes}
	proc := processor.New(tracker, flag, an,
		processor.WithLogger(d.Telemetry.Logger),
		processor.WithTracerProvider(d.Telemetry.TracerProvider))

	pl := pool.New(workers, pool.WithLogger(d.Telemetry.Logger))
	defer pl.Shutdown()

	runID := uuid.NewString()
	results := processor.NewResults(len(req.Files))
	d.Server.SetLive(&api.Live{
		RunID:    runID,
		Root:     req.Root,
		Progress: tracker,
		Results:  results,
		Pool:     pl,
		Cancel:   flag,
	})
	defer d.Server.SetLive(nil)

	opts := []processor.BatchOption{
		processor.WithRunID(runID),
		processor.WithResults(results),
	}
	if d.Bus != nil {
		opts = append(opts, processor.OnResult(func(id string, a domain.FileAnalysis) {
			if err := d.Bus.Publish(context.Background(), id, a); err != nil {
				d.Log.Warn("publish result", "file", a.Filename, "err", err)
			}
		}))
	}

	// The API and the progress ticker run beside the batch. Neither can
	// cancel it; the API outlives ctx so a cancelled run stays observable.
	var side errgroup.Group
	sideCtx, stopSide := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSide()
	if ln != nil {
		side.Go(func() error {
			if err := d.Server.Serve(sideCtx, ln); err != nil {
				d.Log.Warn("status api stopped", "err", err)
			}
			return nil
		})
	}
	if req.OnProgress != nil {
		side.Go(func() error {
			reportProgress(tracker, req.OnProgress, req.ProgressInterval, sideCtx.Done())
			return nil
		})
	}

	summary, err := proc.ProcessFiles(ctx, req.Files, pl, opts...)
	stopSide()
	_ = side.Wait()
	if err != nil {
		return nil, err
	}
	if req.OnProgress != nil {
		req.OnProgress(tracker.Snapshot())
	}

	res := &BatchResult{Summary: summary, Workers: workers}

	if req.ReportPath != "" {
		res.ReportErr = report.Save(req.ReportPath, format, summary.Results)
	}

	run := summary.Run(req.Root, workers)
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if d.Store != nil {
		res.StoreErr = d.Store.SaveRun(saveCtx, run, summary.Results)
		if res.StoreErr != nil {
			d.Log.Warn("run not recorded", "run", runID, "err", res.StoreErr)
		}
	}
	if d.Bus != nil {
		if err := d.Bus.PublishRun(saveCtx, run); err != nil {
			d.Log.Warn("publish run", "run", runID, "err", err)
		}
	}

	return res, nil
}

func reportProgress(t *progress.Tracker, fn func(progress.Snapshot), every time.Duration, done <-chan struct{}) {
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fn(t.Snapshot())
		}
	}
}

// Serve runs the health loop and the status API until ctx ends.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.Health.Run(ctx)
	return d.Server.ListenAndServe(ctx, d.Config.API.Listen)
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.Bus != nil {
		d.Bus.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.Telemetry.Shutdown(ctx)
		cancel()
	}
	for _, c := range d.closers {
		_ = c.Close()
	}
}

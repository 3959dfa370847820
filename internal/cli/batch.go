package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutu-network/pfp/internal/daemon"
	"github.com/tutu-network/pfp/internal/infra/report"
)

func runBatch(cmd *cobra.Command, args []string) error {
	root := args[0]
	workers, ok := daemon.ParseWorkers(args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "Invalid thread count %q, using %d.\n", args[1], workers)
	}

	var finished atomic.Bool
	parent := runContext(cmd)
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer finished.Store(true)
	go func() {
		<-ctx.Done()
		// Restore default handling so a second Ctrl+C aborts.
		stop()
		if parent.Err() == nil && ctx.Err() != nil && !finished.Load() {
			fmt.Fprintln(os.Stderr, "\nCancelling: files not yet started will be skipped. Press Ctrl+C again to abort.")
		}
	}()

	d, err := openDaemon(cmd, func(cfg *daemon.Config) {
		if noHistory {
			cfg.Store.Driver = "none"
		}
	})
	if err != nil {
		return err
	}
	defer d.Close()

	out := d.Config.Report.Path
	if reportPath != "" {
		out = reportPath
	}
	format := report.FormatFor(out)
	if reportFormat != "" {
		if format, err = report.ParseFormat(reportFormat); err != nil {
			return err
		}
	} else if reportPath == "" {
		format, _ = report.ParseFormat(d.Config.Report.Format)
	}

	files, err := d.Enumerate(root)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d files to process.\n", len(files))

	req := daemon.BatchRequest{
		Root:         root,
		Files:        files,
		Workers:      workers,
		ReportPath:   out,
		ReportFormat: format,
		Listen:       listenAddr,
	}
	if isTerminal(os.Stderr) && len(files) > 0 {
		bar := newProgressBar()
		req.OnProgress = bar.update
	}
	if listenAddr != "" {
		fmt.Printf("Status API on http://%s/api/progress\n", listenAddr)
	}

	res, err := d.RunBatch(ctx, req)
	if err != nil {
		return err
	}
	s := res.Summary

	if !quiet {
		names := make([]string, 0, len(s.Progress.Statuses))
		for f := range s.Progress.Statuses {
			names = append(names, f)
		}
		slices.Sort(names)
		for _, f := range names {
			fmt.Printf("%s: %s\n", f, s.Progress.Statuses[f])
		}
	}
	fmt.Printf("All files processed in %s\n", report.FormatDuration(s.Elapsed))
	if s.Cancelled > 0 {
		fmt.Printf("%d of %d files cancelled.\n", s.Cancelled, s.Total)
	}

	if res.ReportErr != nil {
		fmt.Fprintf(os.Stderr, "Failed to save results: %v\n", res.ReportErr)
	} else {
		fmt.Printf("All results saved to %s\n", out)
	}
	if res.StoreErr == nil && d.Store != nil {
		fmt.Printf("Run %s recorded. View it with 'pfp show %s'.\n", s.RunID, s.RunID)
	}
	return nil
}

// openDaemon loads the config, lets the command adjust it, and wires
// the daemon.
func openDaemon(cmd *cobra.Command, adjust func(*daemon.Config)) (*daemon.Daemon, error) {
	daemon.LoadEnv()
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if adjust != nil {
		adjust(&cfg)
	}
	return daemon.NewWithConfig(runContext(cmd), cfg)
}

// runContext returns the command context or a background one.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

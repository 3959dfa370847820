package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutu-network/pfp/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history and metrics over HTTP",
	Long: `Start the status API: /health, /api/runs, /api/runs/{id} and /metrics.
Listens on 127.0.0.1:9464 unless configured otherwise.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd, func(cfg *daemon.Config) {
		if serveListen != "" {
			cfg.API.Listen = serveListen
		}
	})
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Listening on http://%s\n", d.Config.API.Listen)
	return d.Serve(ctx)
}

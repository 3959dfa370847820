// Package cli implements the pfp command-line interface using Cobra.
// The root command runs a batch; subcommands inspect stored runs.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	reportPath   string
	reportFormat string
	listenAddr   string
	noHistory    bool
	quiet        bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $PFP_HOME/config.toml)")

	rootCmd.Flags().StringVarP(&reportPath, "output", "o", "", "Report file (overrides config, default data/results.txt)")
	rootCmd.Flags().StringVar(&reportFormat, "format", "", "Report format: text or json (default from extension)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve the status API on this address while the batch runs")
	rootCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history store")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print per-file statuses")
}

var errUsage = errors.New("usage: pfp <data_dir> <threads>")

var rootCmd = &cobra.Command{
	Use:   "pfp <data_dir> <threads>",
	Short: "Analyze a directory of text files in parallel",
	Long: `pfp walks a directory tree and analyzes every file on a fixed pool of
worker threads: size, words, lines and character frequencies.

Results are written to data/results.txt and recorded in the run history.
Press Ctrl+C once to skip files that have not started; press it again to abort.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errUsage
		}
		return nil
	},
	RunE:          runBatch,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, rootCmd.UsageString())
		}
		os.Exit(1)
	}
}

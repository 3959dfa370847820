package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tutu-network/pfp/internal/infra/report"
)

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "text", "Report format: text or json")
	showCmd.Flags().BoolVar(&showSummaryOnly, "summary", false, "Print only the run summary")
	rootCmd.AddCommand(showCmd)
}

var (
	showFormat      string
	showSummaryOnly bool
)

var showCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show a recorded run and reprint its report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(showFormat)
	if err != nil {
		return err
	}

	d, err := openDaemon(cmd, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.Store == nil {
		return errHistoryDisabled
	}

	ctx := runContext(cmd)
	run, err := d.Store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	if format == report.FormatText {
		fmt.Printf("Run:        %s\n", run.ID)
		fmt.Printf("Root:       %s\n", run.Root)
		fmt.Printf("Workers:    %d\n", run.Workers)
		fmt.Printf("Files:      %d (%d done, %d errors, %d cancelled)\n",
			run.Total, run.Completed-run.Failed, run.Failed, run.Cancelled)
		fmt.Printf("Started:    %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
		fmt.Printf("Elapsed:    %s\n", report.FormatDuration(run.Elapsed))
	}
	if showSummaryOnly {
		return nil
	}

	results, err := d.Store.RunResults(ctx, run.ID)
	if err != nil {
		return err
	}
	if format == report.FormatJSON {
		return report.WriteJSON(os.Stdout, results)
	}
	fmt.Println()
	return report.WriteText(os.Stdout, results)
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errHistoryDisabled = errors.New("run history is disabled (set [store] driver in config.toml)")

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"ls"},
	Short:   "List recorded runs, newest first",
	Args:    cobra.NoArgs,
	RunE:    runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.Store == nil {
		return errHistoryDisabled
	}

	runs, err := d.Store.ListRuns(runContext(cmd), historyLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded. Run 'pfp <data_dir> <threads>' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tROOT\tFILES\tDONE\tERRORS\tCANCELLED\tELAPSED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.Root,
			humanize.Comma(int64(r.Total)),
			r.Completed-r.Failed,
			r.Failed,
			r.Cancelled,
			r.Elapsed.Round(time.Millisecond),
			humanize.Time(r.StartedAt),
		)
	}
	return w.Flush()
}

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Adda-Baaj/apiclient/internal/app"
	"github.com/spf13/cobra"
)

func newRunCmd(runner *app.Runner) *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "run [ID...]",
		Short: "Run catalog requests",
		Long: `Run requests from the catalog (requests_file), all of them when no IDs are given.

With --every the selection is repeated on that interval until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if every > 0 {
				return runner.Watch(cmd.Context(), every, args, func(results []app.Result) {
					writeResults(out, results)
				})
			}

			results, err := runner.RunOnce(cmd.Context(), args...)
			writeResults(out, results)
			if err != nil {
				return fmt.Errorf("%d of %d requests failed: %w", countFailed(results), len(results), err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&every, "every", 0, "Repeat the run on this interval (e.g. 30s)")
	return cmd
}

func writeResults(out io.Writer, results []app.Result) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tTARGET\tOUTCOME\tSTATUS\tDURATION")
	for _, res := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			res.RequestID,
			res.Method,
			res.Target,
			res.Outcome(),
			res.StatusCode(),
			res.Duration.Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}

func countFailed(results []app.Result) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Adda-Baaj/apiclient/internal/app"
	"github.com/spf13/cobra"
)

func newHistoryCmd(runner *app.Runner) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent calls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			recs, err := runner.History(limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No calls recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tID\tMETHOD\tTARGET\tOUTCOME\tSTATUS\tMS")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
					rec.At.Format(time.RFC3339),
					rec.RequestID,
					rec.Method,
					rec.Target,
					rec.Outcome,
					rec.StatusCode,
					rec.DurationMs,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show")
	return cmd
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/report"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scan timestamps",
		Long: `List the timestamps of recorded scans, newest first, with the number of
addresses and MAC addresses seen. Use a timestamp with "newhosts scan -T".`,
		Example: `  newhosts history
  newhosts history --limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := report.ParseFormat(output)
			if err != nil {
				return err
			}
			return runWithStore(cmd, func(ctx context.Context, database *db.DB) error {
				entries, err := database.ListTimestamps(ctx, limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if format == report.FormatJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No scans recorded")
					return nil
				}
				return report.WriteHistory(out, entries)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of timestamps (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json)")
	return cmd
}

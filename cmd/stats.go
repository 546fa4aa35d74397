package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

func statsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted daily usage stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openConfiguredStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			rows, err := stores.Stats.ListDays(ctx, days)
			if err != nil {
				return fmt.Errorf("list days: %w", err)
			}
			printStatsTable(os.Stdout, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of most recent days to show")
	return cmd
}

// printStatsTable writes one row per day, newest first. Failure counts are
// highlighted when non-zero.
func printStatsTable(w io.Writer, rows []store.DailyStats) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no stats recorded yet")
		return
	}

	header := color.New(color.Bold)
	header.Fprintf(w, "%-10s  %8s  %8s  %7s  %10s  %10s  %7s  %7s\n",
		"DATE", "MESSAGES", "AI", "SEARCH", "TOKENS", "COST USD", "AI ERR", "SRCH ERR")

	var total store.DailyStats
	for _, d := range rows {
		fmt.Fprintf(w, "%-10s  %8d  %8d  %7d  %10d  %10.4f  ",
			d.Date, d.MessagesProcessed, d.AIResponses, d.SearchCalls, d.TokensUsed, d.EstimatedCost)
		failureCell(d.AIFailures).Fprintf(w, "%7d", d.AIFailures)
		fmt.Fprint(w, "  ")
		failureCell(d.SearchFailures).Fprintf(w, "%7d", d.SearchFailures)
		fmt.Fprintln(w)

		total.MessagesProcessed += d.MessagesProcessed
		total.AIResponses += d.AIResponses
		total.SearchCalls += d.SearchCalls
		total.TokensUsed += d.TokensUsed
		total.EstimatedCost += d.EstimatedCost
		total.AIFailures += d.AIFailures
		total.SearchFailures += d.SearchFailures
	}

	color.New(color.FgCyan).Fprintf(w, "%-10s  %8d  %8d  %7d  %10d  %10.4f  %7d  %7d\n",
		"TOTAL", total.MessagesProcessed, total.AIResponses, total.SearchCalls,
		total.TokensUsed, total.EstimatedCost, total.AIFailures, total.SearchFailures)
}

func failureCell(n int64) *color.Color {
	if n > 0 {
		return color.New(color.FgRed)
	}
	return color.New(color.Reset)
}

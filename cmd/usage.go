package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/autoresumefiller/autofill/internal/store"
	"github.com/autoresumefiller/autofill/internal/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect persisted token usage and cost",
}

// -- usage summary --

var usageSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show token usage and cost per provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openUsageStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		var from time.Time
		if since > 0 {
			from = time.Now().Add(-since)
		}

		totals, err := st.Summarize(ctx, from, time.Time{})
		if err != nil {
			return eris.Wrap(err, "usage summary")
		}
		if len(totals) == 0 {
			fmt.Fprintln(os.Stderr, "No usage recorded.")
			return nil
		}

		formatUsageSummary(os.Stdout, totals)
		return nil
	},
}

// -- usage list --

var usageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent usage records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openUsageStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prov, _ := cmd.Flags().GetString("provider")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		filter := store.UsageFilter{Provider: prov, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		records, err := st.ListUsage(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "usage list")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No usage recorded.")
			return nil
		}

		formatUsageList(os.Stdout, records)
		return nil
	},
}

func openUsageStore(ctx context.Context) (store.UsageStore, error) {
	if err := cfg.Validate("usage"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open usage store")
	}
	if st == nil {
		return nil, eris.New("usage store is disabled (store.driver = none)")
	}
	return st, nil
}

func init() {
	usageSummaryCmd.Flags().Duration("since", 24*time.Hour, "time window (e.g. 24h, 168h; 0 for all time)")

	usageListCmd.Flags().String("provider", "", "filter by provider")
	usageListCmd.Flags().Int("limit", 50, "max number of records to display")
	usageListCmd.Flags().Duration("since", 0, "only records newer than this")

	usageCmd.AddCommand(usageSummaryCmd)
	usageCmd.AddCommand(usageListCmd)
	rootCmd.AddCommand(usageCmd)
}

// formatUsageSummary writes per-provider totals and a grand total to w.
func formatUsageSummary(out io.Writer, totals []store.ProviderTotals) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL\tCOST_USD")
	_, _ = fmt.Fprintln(w, "--------\t--------\t------\t----------\t-----\t--------")

	var sum store.ProviderTotals
	for _, t := range totals {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.6f\n",
			t.Provider, t.Requests, t.PromptTokens, t.CompletionTokens, t.TotalTokens, t.CostUSD)
		sum.Requests += t.Requests
		sum.PromptTokens += t.PromptTokens
		sum.CompletionTokens += t.CompletionTokens
		sum.TotalTokens += t.TotalTokens
		sum.CostUSD += t.CostUSD
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%d\t%.6f\n",
		sum.Requests, sum.PromptTokens, sum.CompletionTokens, sum.TotalTokens, sum.CostUSD)
	_ = w.Flush()
}

// formatUsageList writes a tabular list of usage records to w.
func formatUsageList(out io.Writer, records []usage.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTIME\tPROVIDER\tMODEL\tTOKENS\tCOST_USD\tSESSION")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t-----\t------\t--------\t-------")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.6f\t%s\n",
			truncateID(r.ID),
			r.RecordedAt.Local().Format("2006-01-02 15:04"),
			r.Provider,
			r.Model,
			r.TotalTokens,
			r.CostUSD,
			truncateID(r.SessionID),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var insightsJSON bool

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show platform anomalies, opportunities and counters",
	Long: `Print the admin overview: RED anomalies first, then every anomaly,
operational opportunities and headline platform counters.

Insights come from the shared cache and are recomputed at most once per TTL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Insights == nil {
			return fmt.Errorf("insight service not initialized")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		o := Insights.Overview(ctx)

		out := cmd.OutOrStdout()
		if insightsJSON {
			return printJSON(out, o)
		}

		if o.Insights.ComputedAt == nil {
			fmt.Fprintln(out, "Insights unavailable (no successful computation yet)")
		} else {
			fmt.Fprintf(out, "Insights (computed %s)\n", o.Insights.ComputedAt.Format(time.RFC3339))
		}

		m := o.Metrics
		fmt.Fprintln(out, "\nPlatform")
		fmt.Fprintf(out, "  %-24s %d\n", "Users:", m.TotalUsers)
		fmt.Fprintf(out, "  %-24s %d\n", "Coaches:", m.Coaches)
		fmt.Fprintf(out, "  %-24s %d\n", "Clients:", m.Clients)
		fmt.Fprintf(out, "  %-24s %d\n", "Active cohorts:", m.ActiveCohorts)
		fmt.Fprintf(out, "  %-24s %d\n", "Entries (7d):", m.EntriesLast7Days)
		fmt.Fprintf(out, "  %-24s %.0f%%\n", "Completion (7d):", m.CompletionRate7Days*100)

		fmt.Fprintf(out, "\nAnomalies (%d, %d high priority)\n", len(o.Insights.Anomalies), len(o.Insights.HighPriority))
		if len(o.Insights.Anomalies) == 0 {
			fmt.Fprintln(out, "  none")
		}
		for _, a := range o.Insights.Anomalies {
			fmt.Fprintf(out, "  [%s] %s\n", a.Priority, a.Description)
		}

		fmt.Fprintf(out, "\nOpportunities (%d)\n", len(o.Insights.Opportunities))
		if len(o.Insights.Opportunities) == 0 {
			fmt.Fprintln(out, "  none")
		}
		for _, op := range o.Insights.Opportunities {
			fmt.Fprintf(out, "  - %s\n", op.Description)
		}
		return nil
	},
}

func init() {
	insightsCmd.Flags().BoolVar(&insightsJSON, "json", false, "Output the overview as JSON")
	rootCmd.AddCommand(insightsCmd)
}

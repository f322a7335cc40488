package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
)

var (
	statsJSON  bool
	statsSince string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display engine statistics from the event log",
	Long: `Display statistics derived from the event log: insight refreshes and
their average duration, refresh failures by reason, attention queue builds
and settings changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Stats == nil {
			return fmt.Errorf("stats calculator not initialized (event log may be disabled)")
		}

		since, err := observability.ParseSince(statsSince, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		st, err := Stats.Calculate(since)
		if err != nil {
			return fmt.Errorf("calculating stats: %w", err)
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			return printJSON(out, st)
		}

		fmt.Fprintf(out, "Engine stats (since %s)\n\n", since.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", st.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Insight refreshes:", st.Refreshes)
		fmt.Fprintf(out, "  %-24s %.0fms\n", "Avg refresh:", st.AvgRefreshMillis)
		fmt.Fprintf(out, "  %-24s %d\n", "Refresh failures:", st.RefreshFailures)
		fmt.Fprintf(out, "  %-24s %d\n", "Queue builds:", st.QueueBuilds)
		fmt.Fprintf(out, "  %-24s %d\n", "Settings changes:", st.SettingsChanges)

		if len(st.FailuresByReason) > 0 {
			fmt.Fprintln(out, "\n  Failures by reason:")
			reasons := make([]string, 0, len(st.FailuresByReason))
			for r := range st.FailuresByReason {
				reasons = append(reasons, r)
			}
			sort.Strings(reasons)
			for _, r := range reasons {
				fmt.Fprintf(out, "    %-20s %d\n", r+":", st.FailuresByReason[r])
			}
		}

		if st.LastRefresh != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Last refresh:", st.LastRefresh.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output stats as JSON")
	statsCmd.Flags().StringVar(&statsSince, "since", "7d", "Time window for stats (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(statsCmd)
}

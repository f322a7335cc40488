package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

var (
	trendsWindow string
	trendsJSON   bool
)

var trendsCmd = &cobra.Command{
	Use:   "trends <metric>",
	Short: "Chart a platform metric over time",
	Long: `Print a gap-free series for one metric with the direction of each
point relative to the previous bucket.

Metrics: user_growth, entry_completion, active_clients
Windows: 7d, 14d, 30d (daily buckets), 90d (weekly buckets)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Trends == nil {
			return fmt.Errorf("trend generator not initialized")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		metric := args[0]
		points, err := Trends.GenerateTrends(ctx, metric, trendsWindow)
		if err != nil {
			return fmt.Errorf("generating %s trend: %w", metric, err)
		}

		out := cmd.OutOrStdout()
		if trendsJSON {
			return printJSON(out, map[string]any{"metric": metric, "window": trendsWindow, "points": points})
		}

		fmt.Fprintf(out, "%s over %s  %s\n\n", metric, trendsWindow, sparkline(points))
		for _, p := range points {
			fmt.Fprintf(out, "  %s  %10.2f  %s\n", p.Timestamp.Format("2006-01-02"), p.Value, directionArrow(p.Direction))
		}
		return nil
	},
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline renders values scaled between the series minimum and maximum.
func sparkline(points []models.TrendPoint) string {
	if len(points) == 0 {
		return ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	var b strings.Builder
	for _, p := range points {
		idx := 0
		if hi > lo {
			idx = int((p.Value - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

func directionArrow(d models.Direction) string {
	switch d {
	case models.DirectionUp:
		return "↑"
	case models.DirectionDown:
		return "↓"
	default:
		return "→"
	}
}

func init() {
	trendsCmd.Flags().StringVar(&trendsWindow, "window", observability.DefaultTrendWindow, "Time window (7d, 14d, 30d, 90d)")
	trendsCmd.Flags().BoolVar(&trendsJSON, "json", false, "Output the series as JSON")
	rootCmd.AddCommand(trendsCmd)
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

var (
	attentionJSON  bool
	attentionTier  string
	attentionLimit int
)

var attentionCmd = &cobra.Command{
	Use:   "attention",
	Short: "Show the RED/AMBER/GREEN attention queue",
	Long: `Score every client, coach and cohort and print the attention queue.

Entities are grouped into RED, AMBER and GREEN tiers, highest score first
within each tier, with the reasons that contributed to each score.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Attention == nil {
			return fmt.Errorf("attention service not initialized")
		}
		tier := models.Priority(strings.ToUpper(attentionTier))
		switch tier {
		case "", models.PriorityRed, models.PriorityAmber, models.PriorityGreen:
		default:
			return fmt.Errorf("invalid --tier %q: must be one of red, amber, green", attentionTier)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		q, err := Attention.Queue(ctx)
		if err != nil {
			return fmt.Errorf("building attention queue: %w", err)
		}

		out := cmd.OutOrStdout()
		if attentionJSON {
			return printJSON(out, q)
		}

		fmt.Fprintf(out, "Attention queue: %d red, %d amber, %d green (%d total)\n",
			q.Summary.Red, q.Summary.Amber, q.Summary.Green, q.Summary.Total)
		for _, t := range []struct {
			p     models.Priority
			items []models.AttentionQueueItem
		}{
			{models.PriorityRed, q.Red},
			{models.PriorityAmber, q.Amber},
			{models.PriorityGreen, q.Green},
		} {
			if tier != "" && tier != t.p {
				continue
			}
			printTier(out, t.p, t.items, attentionLimit)
		}
		return nil
	},
}

func printTier(w io.Writer, p models.Priority, items []models.AttentionQueueItem, limit int) {
	fmt.Fprintf(w, "\n%s (%d)\n", p, len(items))
	if len(items) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	shown := items
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, it := range shown {
		fmt.Fprintf(w, "  %3d  %-7s %-24s %s\n", it.Score, it.EntityType, it.EntityName, strings.Join(it.Reasons, "; "))
	}
	if len(shown) < len(items) {
		fmt.Fprintf(w, "  ... %d more\n", len(items)-len(shown))
	}
}

func init() {
	attentionCmd.Flags().BoolVar(&attentionJSON, "json", false, "Output the queue as JSON")
	attentionCmd.Flags().StringVar(&attentionTier, "tier", "", "Only show one tier (red, amber, green)")
	attentionCmd.Flags().IntVar(&attentionLimit, "limit", 10, "Maximum items per tier (0 shows all)")
	rootCmd.AddCommand(attentionCmd)
}

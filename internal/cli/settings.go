package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
)

var settingsJSON bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change scoring settings",
	Long: `Scoring and insight thresholds resolve in this order: the settings
table, the settings section of .pulseconfig, then built-in defaults.
Values are clamped to safe ranges after resolution.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Settings == nil {
			return fmt.Errorf("settings loader not initialized")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		s, err := Settings.Load(ctx)
		if err != nil {
			logging.Warn("settings table unavailable, showing config and defaults", "err", err)
		}

		out := cmd.OutOrStdout()
		if settingsJSON {
			return printJSON(out, s)
		}

		values := storage.SettingsMap(s)
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-26s %s\n", k, values[k])
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting override",
	Long: `Persist a setting override in the settings table. The key is matched
case-insensitively and the value must parse as the setting's type.

The change applies to the next queue build; cached insights pick it up
when they next refresh.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if SettingsStore == nil {
			return fmt.Errorf("settings store not initialized")
		}
		key, err := storage.ValidateSetting(args[0], args[1])
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := SettingsStore.SetSetting(ctx, key, args[1]); err != nil {
			return fmt.Errorf("saving setting %s: %w", key, err)
		}

		logging.Info("setting changed", "key", key, "value", args[1])
		if Events != nil {
			_ = Events.LogEvent(observability.EventSettingsChanged, map[string]any{
				"key":   key,
				"value": args[1],
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, args[1])
		return nil
	},
}

func init() {
	settingsShowCmd.Flags().BoolVar(&settingsJSON, "json", false, "Output settings as JSON")
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

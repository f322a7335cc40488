package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <fixture.yaml>",
	Short: "Load users, cohorts, memberships and entries from a YAML fixture",
	Long: `Import records from a YAML fixture into the database. Existing records
with the same id are replaced. An optional settings map is written to the
settings table after every key is validated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Records == nil || SettingsStore == nil {
			return fmt.Errorf("record store not initialized")
		}

		fx, err := storage.LoadFixture(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		res, err := storage.ImportFixture(ctx, Records, SettingsStore, fx)
		if err != nil {
			return fmt.Errorf("importing %s: %w", args[0], err)
		}

		logging.Info("fixture imported", "path", args[0],
			"users", res.Users, "cohorts", res.Cohorts, "memberships", res.Memberships,
			"entries", res.Entries, "settings", res.Settings)
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d users, %d cohorts, %d memberships, %d entries, %d settings\n",
			res.Users, res.Cohorts, res.Memberships, res.Entries, res.Settings)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

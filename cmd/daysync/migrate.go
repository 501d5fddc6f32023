package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/daysync/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate <localstorage.json>",
	GroupID: "setup",
	Short:   "Import data saved by the browser version of the app",
	Long: `Import the notes history and settings from a JSON dump of the browser
app's localStorage. Entries that fail validation are skipped and listed.

The migration runs once: after a successful run the imported keys are
removed from the file and later runs do nothing. Use --dry-run to preview.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		res, err := mustService(ctx).Migrate(ctx, args[0], dryRun)
		if err != nil {
			fatalf("migration failed: %v", err)
		}
		if res.AlreadyDone {
			fmt.Printf("%s Migration already completed\n", ui.RenderPass("✓"))
			return
		}

		verb := "Migrated"
		if dryRun {
			verb = "Would migrate"
		}
		fmt.Printf("%s %s %d todos and %d settings\n", ui.RenderPass("✓"), verb, res.Imported, res.SettingsMigrated)
		if res.Skipped > 0 {
			fmt.Printf("%s Skipped %d invalid entries\n", ui.RenderWarn("⚠"), res.Skipped)
			for _, e := range res.Errors {
				fmt.Printf("   - %s\n", e)
			}
		}
		if len(res.KeysRemoved) > 0 {
			fmt.Printf("   Removed from %s: %s\n", args[0], strings.Join(res.KeysRemoved, ", "))
		}
	},
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "Report what would be imported without writing")
	rootCmd.AddCommand(migrateCmd)
}

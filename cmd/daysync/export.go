package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/reconcile"
	"github.com/mschirtzinger/daysync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Export all todos and settings to a backup bundle",
	Long: `Write every todo and setting to a JSON bundle named
motivation-adhd-backup-YYYY-MM-DD.json. The bundle records this device's id
and can be imported on any other device.

Examples:
  daysync export                  # into the current directory
  daysync export --out ~/Backups
  daysync export --stdout > backup.json`,
	Run: runExport,
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "sync",
	Short:   "Import a backup bundle",
	Long: `Apply a bundle produced by 'daysync export' (on this or another device).

Strategies:
  overwrite  replace local records and settings with the bundle's
  merge      add only records that do not exist locally
  manual     like overwrite, but refuse when records were edited on both sides

Without --strategy an interactive picker is shown when stdin is a terminal;
otherwise sync.default_strategy from the config is used.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	exportCmd.Flags().StringP("out", "o", ".", "Directory to write the bundle into")
	exportCmd.Flags().Bool("stdout", false, "Write the bundle to stdout instead of a file")
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().StringP("strategy", "s", "", "Reconcile strategy: overwrite, merge or manual")
	importCmd.Flags().Bool("check", false, "Only report conflicts, do not import")
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	out, _ := cmd.Flags().GetString("out")
	toStdout, _ := cmd.Flags().GetBool("stdout")

	svc := mustService(ctx)
	b, err := svc.ExportData(ctx)
	if err != nil {
		fatalf("export failed: %v", err)
	}

	if toStdout {
		data, err := bundle.Encode(b)
		if err != nil {
			fatalf("%v", err)
		}
		os.Stdout.Write(data)
		return
	}

	path, err := svc.DownloadBundle(b, out)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%s Exported %d todos and %d settings\n", ui.RenderPass("✓"), len(b.Todos), len(b.Settings))
	fmt.Printf("   File: %s\n", path)
}

func runImport(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	check, _ := cmd.Flags().GetBool("check")

	svc := mustService(ctx)
	b, err := svc.PickBundleFile(args[0])
	if err != nil {
		fatalf("%v", err)
	}

	if check {
		conflicts, err := svc.DetectConflicts(ctx, b)
		if err != nil {
			fatalf("%v", err)
		}
		printConflicts(conflicts)
		return
	}

	strategy := chooseStrategy(cmd, b)
	res, err := svc.ImportBundle(ctx, b, strategy)
	if err != nil {
		var ce *reconcile.ConflictError
		if errors.As(err, &ce) {
			printConflicts(ce.Conflicts)
			fatalf("nothing imported; resolve the conflicts or use --strategy overwrite")
		}
		fatalf("import failed: %v", err)
	}
	printResult(b, res)
}

// chooseStrategy resolves the strategy from the flag, an interactive
// picker, or the configured default, in that order.
func chooseStrategy(cmd *cobra.Command, b *bundle.Bundle) reconcile.Strategy {
	if flag, _ := cmd.Flags().GetString("strategy"); flag != "" {
		s, err := reconcile.ParseStrategy(flag)
		if err != nil {
			fatalf("%v", err)
		}
		return s
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return defaultStrategy()
	}

	choice := string(defaultStrategy())
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("Import %d todos from %s", len(b.Todos), b.Metadata.DeviceName)).
			Options(
				huh.NewOption("Merge: add only new records", string(reconcile.Merge)),
				huh.NewOption("Overwrite: replace with the backup", string(reconcile.Overwrite)),
				huh.NewOption("Manual: stop on conflicts", string(reconcile.Manual)),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		fatalf("import cancelled: %v", err)
	}
	s, err := reconcile.ParseStrategy(choice)
	if err != nil {
		fatalf("%v", err)
	}
	return s
}

func printResult(b *bundle.Bundle, res *reconcile.Result) {
	fmt.Printf("%s Imported backup from %s (%s)\n", ui.RenderPass("✓"), b.Metadata.DeviceName, res.Strategy)
	fmt.Printf("   Added: %d\n", res.Added)
	fmt.Printf("   Updated: %d\n", res.Updated)
	fmt.Printf("   Skipped: %d\n", res.Skipped)
	fmt.Printf("   Settings: %d\n", res.SettingsWritten)
	if !res.BookkeepingUpdated {
		fmt.Printf("   %s\n", ui.RenderMuted("last sync time unchanged (backup is not newer)"))
	}
}

func printConflicts(conflicts []reconcile.Conflict) {
	if len(conflicts) == 0 {
		fmt.Printf("%s No conflicts\n", ui.RenderPass("✓"))
		return
	}
	fmt.Printf("\n%s %d conflicting record(s)\n\n", ui.RenderWarn("⚠"), len(conflicts))
	for _, c := range conflicts {
		fmt.Printf("  %s %s\n", ui.RenderAccent(ui.ShortID(c.ID)), c.Local.Date)
		fmt.Printf("     local:  %s\n", ui.Truncate(c.Local.Content, 60))
		fmt.Printf("     backup: %s\n", ui.Truncate(c.Remote.Content, 60))
	}
	fmt.Println()
}

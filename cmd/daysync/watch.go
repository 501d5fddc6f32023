package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/daysync/internal/config"
	"github.com/mschirtzinger/daysync/internal/reconcile"
	"github.com/mschirtzinger/daysync/internal/ui"
	"github.com/mschirtzinger/daysync/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Import bundles dropped into the inbox directory (foreground)",
	Long: `Watch the inbox directory and import every bundle file that appears in it.

Files are imported with sync.default_strategy (or --strategy) once they have
not changed for the debounce interval, then moved to <inbox>/imported.
Point a file sync tool or a download folder at the inbox to pick up backups
from other devices automatically.

Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		svc := mustService(ctx)

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Inbox()
		}
		dir = config.ExpandHome(dir)
		debounce, _ := cmd.Flags().GetDuration("debounce")

		strategy := defaultStrategy()
		if flag, _ := cmd.Flags().GetString("strategy"); flag != "" {
			s, err := reconcile.ParseStrategy(flag)
			if err != nil {
				fatalf("%v", err)
			}
			strategy = s
		}

		logger := current.log.With("component", "watch")
		handler := func(ctx context.Context, path string) error {
			res, err := svc.ImportData(ctx, path, strategy)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: +%d added, %d updated, %d skipped\n",
				ui.RenderPass("✓"), filepath.Base(path), res.Added, res.Updated, res.Skipped)
			return nil
		}

		w, err := watch.New(dir, handler, &watch.Config{
			Debounce:   debounce,
			ArchiveDir: filepath.Join(dir, "imported"),
			Logger:     logger,
		})
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Watching %s (strategy: %s)\n", ui.RenderAccent("👀"), dir, strategy)
		fmt.Println("Press Ctrl+C to stop...")
		if err := w.Run(ctx); err != nil {
			fatalf("%v", err)
		}

		handled, failures := w.Stats()
		fmt.Printf("\nStopped: %d imported, %d failed\n", handled, failures)
	},
}

func init() {
	watchCmd.Flags().String("dir", "", "Inbox directory (default sync.inbox_dir or <data_dir>/inbox)")
	watchCmd.Flags().StringP("strategy", "s", "", "Reconcile strategy: overwrite, merge or manual")
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a file is imported")
	rootCmd.AddCommand(watchCmd)
}

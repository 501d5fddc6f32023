package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/daysync/internal/config"
	"github.com/mschirtzinger/daysync/internal/storage"
	"github.com/mschirtzinger/daysync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.WriteDefault(path, force); err != nil {
			fatalf("%v (use --force to replace it)", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := config.Marshal(loadConfig())
		if err != nil {
			fatalf("%v", err)
		}
		os.Stdout.Write(data)
	},
}

var storageCmd = &cobra.Command{
	Use:     "storage",
	GroupID: "setup",
	Short:   "Inspect or switch the storage backend",
}

var storageBackendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the available backends",
	Run: func(cmd *cobra.Command, args []string) {
		active := loadConfig().Storage.Backend
		for _, name := range storage.Backends() {
			marker := " "
			if name == active {
				marker = ui.RenderPass("*")
			}
			fmt.Printf("%s %s\n", marker, name)
		}
	},
}

var storageCopyCmd = &cobra.Command{
	Use:   "copy <backend> <path>",
	Short: "Copy all data into another backend",
	Long: `Copy every todo and setting from the configured backend into another one,
for example to move from sqlite to libsql. Set storage.backend (and
data_dir if the path differs) afterwards to use the copy.

Example:
  daysync storage copy libsql ~/.local/share/daysync/daysync-libsql.db`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		mustService(ctx)
		logger := current.log.Logger

		next, err := storage.New(args[0], config.ExpandHome(args[1]), logger)
		if err != nil {
			fatalf("%v", err)
		}
		todos, settings, err := current.storage.SwitchTo(ctx, next)
		if err != nil {
			fatalf("copy failed: %v", err)
		}
		fmt.Printf("%s Copied %d todos and %d settings to %s\n", ui.RenderPass("✓"), todos, settings, next.Name())
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Replace an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)

	storageCmd.AddCommand(storageBackendsCmd, storageCopyCmd)
	rootCmd.AddCommand(storageCmd)
}

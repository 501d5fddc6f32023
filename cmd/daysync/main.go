// Command daysync manages the local task store and its backups.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/daysync/internal/config"
	"github.com/mschirtzinger/daysync/internal/device"
	"github.com/mschirtzinger/daysync/internal/logging"
	"github.com/mschirtzinger/daysync/internal/oauth"
	"github.com/mschirtzinger/daysync/internal/reconcile"
	"github.com/mschirtzinger/daysync/internal/service"
	"github.com/mschirtzinger/daysync/internal/storage"
	"github.com/mschirtzinger/daysync/internal/ui"
)

var (
	configPath string
	dataDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "daysync",
	Short: "Local-first daily tasks with portable backups",
	Long: `daysync keeps your daily tasks in a local database and moves them between
devices as self-contained JSON bundles, either as files or through a remote
(S3 bucket, Google Drive, OneDrive or a shared directory).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(os.Stdout)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		current.close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/daysync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Tasks:"},
		&cobra.Group{ID: "sync", Title: "Backup and sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

// app is the per-invocation wiring, built lazily so that commands such as
// `config init` work without a store.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	storage *storage.Manager
	flow    *oauth.Flow
	svc     *service.Service
}

var current = &app{}

func (a *app) close() {
	if a.flow != nil {
		_ = a.flow.Stop()
		a.flow = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
		}
		a.storage = nil
	}
	if a.log != nil {
		_ = a.log.Close()
		a.log = nil
	}
	a.svc = nil
}

// loadConfig reads the configuration and builds the logger.
func loadConfig() *config.Config {
	if current.cfg != nil {
		return current.cfg
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if dataDir != "" {
		cfg.DataDir = config.ExpandHome(dataDir)
	}
	logger, err := logging.New(cfg.Log, os.Stderr, verbose)
	if err != nil {
		fatalf("%v", err)
	}
	current.cfg, current.log = cfg, logger
	return cfg
}

// mustService opens the configured store and returns the service over it.
func mustService(ctx context.Context) *service.Service {
	if current.svc != nil {
		return current.svc
	}
	cfg := loadConfig()
	logger := current.log.Logger

	adapter, err := storage.New(cfg.Storage.Backend, cfg.StorePath(), logger)
	if err != nil {
		fatalf("%v", err)
	}
	if err := adapter.Initialize(ctx); err != nil {
		fatalf("failed to open %s store at %s: %v", cfg.Storage.Backend, cfg.StorePath(), err)
	}
	current.storage = storage.NewManager(adapter, logger)

	timeout, _ := cfg.OAuth.TimeoutDuration()
	current.flow = oauth.NewFlow(
		oauth.WithListenAddr(cfg.OAuth.ListenAddr),
		oauth.WithTimeout(timeout),
		oauth.WithLogger(logger.With("component", "oauth")),
	)

	current.svc = service.New(current.storage, device.NewStore(cfg.DevicePath()),
		service.WithLogger(logger),
		service.WithTokenSource(current.flow.Initiate),
	)
	return current.svc
}

// defaultStrategy is the configured import strategy.
func defaultStrategy() reconcile.Strategy {
	s, err := reconcile.ParseStrategy(loadConfig().Sync.DefaultStrategy)
	if err != nil {
		return reconcile.Merge
	}
	return s
}

// fatalf prints an error and exits with status 1.
func fatalf(format string, args ...any) {
	current.close()
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
}

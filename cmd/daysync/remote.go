package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/cloud"
	"github.com/mschirtzinger/daysync/internal/config"
	"github.com/mschirtzinger/daysync/internal/reconcile"
	"github.com/mschirtzinger/daysync/internal/service"
	"github.com/mschirtzinger/daysync/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "sync",
	Short:   "Back up to and restore from a remote",
	Long: `Configure a remote and move backups through it.

Supported remotes:
  s3          an S3 bucket (or any S3 compatible store)
  google      Google Drive, files created by this app only
  onedrive    the OneDrive app folder
  filesystem  a directory, e.g. a synced folder or a network share

Google Drive and OneDrive authorize through your browser the first time
they are used; the token is cached until it expires.`,
}

var remoteConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Select and configure the remote",
}

var remoteConfigS3Cmd = &cobra.Command{
	Use:   "s3",
	Short: "Use an S3 bucket",
	Long: `Use an S3 bucket. Backups are stored as <prefix>/sync-YYYY-MM-DD.json.

The secret key may also come from the AWS_SECRET_ACCESS_KEY environment variable.

Example:
  daysync remote config s3 --bucket my-backups --access-key-id AKIA... --region eu-west-1`,
	Run: func(cmd *cobra.Command, args []string) {
		f := cmd.Flags()
		s3 := cloud.DefaultS3Config()
		s3.AccessKeyID, _ = f.GetString("access-key-id")
		s3.SecretAccessKey, _ = f.GetString("secret-access-key")
		s3.BucketName, _ = f.GetString("bucket")
		s3.Endpoint, _ = f.GetString("endpoint")
		s3.Insecure, _ = f.GetBool("insecure")
		if f.Changed("region") {
			s3.Region, _ = f.GetString("region")
		}
		if f.Changed("prefix") {
			s3.KeyPrefix, _ = f.GetString("prefix")
		}
		if s3.SecretAccessKey == "" {
			s3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		}
		saveRemote(cmd.Context(), cloud.Config{Type: cloud.TypeS3, S3: &s3})
	},
}

var remoteConfigGoogleCmd = &cobra.Command{
	Use:   "google",
	Short: "Use Google Drive",
	Run: func(cmd *cobra.Command, args []string) {
		clientID, _ := cmd.Flags().GetString("client-id")
		saveRemote(cmd.Context(), cloud.Config{Type: cloud.TypeGoogle, ClientID: clientID})
	},
}

var remoteConfigOneDriveCmd = &cobra.Command{
	Use:   "onedrive",
	Short: "Use the OneDrive app folder",
	Run: func(cmd *cobra.Command, args []string) {
		clientID, _ := cmd.Flags().GetString("client-id")
		saveRemote(cmd.Context(), cloud.Config{Type: cloud.TypeOneDrive, ClientID: clientID})
	},
}

var remoteConfigFilesystemCmd = &cobra.Command{
	Use:   "filesystem <dir>",
	Short: "Use a directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		saveRemote(cmd.Context(), cloud.Config{Type: cloud.TypeFilesystem, Dir: args[0]})
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured remote",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := mustRemote(ctx)
		if cfg.S3 != nil {
			redacted := cfg.S3.Redacted()
			cfg.S3 = &redacted
		}
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
	},
}

var remoteClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the configured remote",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if err := mustService(ctx).ClearRemoteConfig(ctx); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Remote cleared\n", ui.RenderPass("✓"))
	},
}

var remoteLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize the remote (opens the browser for Google Drive and OneDrive)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := mustRemote(ctx)
		if cfg.Type.IsOAuth() {
			fmt.Printf("%s Waiting for authorization in your browser...\n", ui.RenderAccent("→"))
		}
		p, err := mustService(ctx).Login(ctx, cfg)
		if err != nil {
			fatalf("login failed: %v", err)
		}
		fmt.Printf("%s Logged in to %s\n", ui.RenderPass("✓"), p.Name())
	},
}

var remoteLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the cached authorization",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := mustRemote(ctx)
		if err := mustService(ctx).Logout(ctx, cfg); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Logged out of %s\n", ui.RenderPass("✓"), cfg.Type)
	},
}

var remoteUploadCmd = &cobra.Command{
	Use:   "upload [bundle-file]",
	Short: "Upload a backup of the current data (or an existing bundle file)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		svc := mustService(ctx)
		cfg := mustRemote(ctx)

		// A nil bundle uploads a fresh export.
		var b *bundle.Bundle
		if len(args) == 1 {
			var err error
			if b, err = svc.PickBundleFile(args[0]); err != nil {
				fatalf("%v", err)
			}
		}
		id, err := svc.UploadToRemote(ctx, cfg, b)
		if err != nil {
			fatalf("upload failed: %v", err)
		}
		fmt.Printf("%s Uploaded to %s\n", ui.RenderPass("✓"), cfg.Type)
		fmt.Printf("   ID: %s\n", id)
	},
}

var remoteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List remote backups, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		svc := mustService(ctx)
		files, err := svc.ListRemoteFiles(ctx, mustRemote(ctx))
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(ui.RemoteTable(files))
	},
}

var remoteDownloadCmd = &cobra.Command{
	Use:   "download [name|id]",
	Short: "Download a remote backup and import it",
	Long: `Download a backup (the newest one by default) and import it with the
given strategy. With --out the bundle is saved to a directory instead.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		svc := mustService(ctx)
		name := service.LatestFile
		if len(args) == 1 {
			name = args[0]
		}

		b, err := svc.DownloadFromRemote(ctx, mustRemote(ctx), name)
		if err != nil {
			fatalf("download failed: %v", err)
		}

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			path, err := svc.DownloadBundle(b, out)
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s Saved %d todos to %s\n", ui.RenderPass("✓"), len(b.Todos), path)
			return
		}

		strategy := chooseStrategy(cmd, b)
		res, err := svc.ImportBundle(ctx, b, strategy)
		if err != nil {
			if reconcile.IsConflictError(err) {
				conflicts, _ := svc.DetectConflicts(ctx, b)
				printConflicts(conflicts)
			}
			fatalf("import failed: %v", err)
		}
		printResult(b, res)
	},
}

func init() {
	s3 := remoteConfigS3Cmd.Flags()
	s3.String("access-key-id", "", "Access key id")
	s3.String("secret-access-key", "", "Secret access key")
	s3.String("bucket", "", "Bucket name")
	s3.String("region", cloud.DefaultS3Region, "Region")
	s3.String("prefix", cloud.DefaultS3KeyPrefix, "Key prefix (empty for the bucket root)")
	s3.String("endpoint", "", "Endpoint of an S3 compatible store (host[:port])")
	s3.Bool("insecure", false, "Disable TLS (local test servers only)")

	remoteConfigGoogleCmd.Flags().String("client-id", "", "OAuth client id of your Google Cloud app")
	remoteConfigOneDriveCmd.Flags().String("client-id", "", "Application (client) id of your Azure app")

	remoteDownloadCmd.Flags().StringP("strategy", "s", "", "Reconcile strategy: overwrite, merge or manual")
	remoteDownloadCmd.Flags().StringP("out", "o", "", "Save the bundle into this directory instead of importing")

	remoteConfigCmd.AddCommand(remoteConfigS3Cmd, remoteConfigGoogleCmd, remoteConfigOneDriveCmd, remoteConfigFilesystemCmd)
	remoteCmd.AddCommand(remoteConfigCmd, remoteShowCmd, remoteClearCmd, remoteLoginCmd, remoteLogoutCmd,
		remoteUploadCmd, remoteListCmd, remoteDownloadCmd)
	rootCmd.AddCommand(remoteCmd)
}

func saveRemote(ctx context.Context, cfg cloud.Config) {
	if cfg.Type == cloud.TypeFilesystem {
		dir, err := filepath.Abs(config.ExpandHome(cfg.Dir))
		if err != nil {
			fatalf("%v", err)
		}
		cfg.Dir = dir
	}
	if err := mustService(ctx).SaveRemoteConfig(ctx, cfg); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%s Remote set to %s\n", ui.RenderPass("✓"), cfg.Type)
	if cfg.Type.IsOAuth() && cfg.ClientID == "" {
		fmt.Printf("   %s\n", ui.RenderWarn("no --client-id given; login will fail until one is set"))
	}
}

// mustRemote returns the stored remote config or exits.
func mustRemote(ctx context.Context) *cloud.Config {
	cfg, ok, err := mustService(ctx).GetRemoteConfig(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if !ok {
		fatalf("no remote configured (see 'daysync remote config --help')")
	}
	return cfg
}

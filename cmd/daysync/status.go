package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/daysync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show device identity and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		jsonOutput, _ := cmd.Flags().GetBool("json")

		st, err := mustService(ctx).GetSyncStatus(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			data, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(data))
			return
		}

		orNever := func(s string) string {
			if s == "" {
				return ui.RenderMuted("never")
			}
			return s
		}
		remote := ui.RenderMuted("none")
		if st.Remote != "" {
			remote = string(st.Remote)
			if st.LoggedIn {
				remote += " " + ui.RenderPass("(ready)")
			} else {
				remote += " " + ui.RenderWarn("(login required)")
			}
		}

		fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
		fmt.Print(ui.KeyValues([][2]string{
			{"Device", st.DeviceName},
			{"Device ID", st.DeviceID},
			{"Store", fmt.Sprintf("%s (%s)", loadConfig().StorePath(), st.Backend)},
			{"Todos", strconv.Itoa(st.Todos)},
			{"Last sync", orNever(st.LastSyncAt)},
			{"Synced with", orNever(st.SyncedWith)},
			{"Remote", remote},
			{"Migrated", strconv.FormatBool(st.Migrated)},
		}))
		fmt.Println()
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}

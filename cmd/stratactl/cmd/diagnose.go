package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Dump the full session diagnostics snapshot",
	Long: `Captures every component's state in one JSON document: session status,
token presence and expiry, storage tier health, refresh coordinator
counters and the offline cache. Token material itself is never included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(application.Diagnostics().Snapshot(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

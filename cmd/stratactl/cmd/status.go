package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and storage health",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		snap := application.Diagnostics().Snapshot(cmd.Context())

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		fmt.Printf("status:          %s\n", snap.Status)
		fmt.Printf("access token:    %v (valid: %v)\n", snap.HasAccessToken, snap.TokenValid)
		fmt.Printf("refresh token:   %v\n", snap.HasRefreshToken)
		if !snap.TokenExpiry.IsZero() {
			fmt.Printf("token expiry:    %s\n", snap.TokenExpiry.Local())
		}
		fmt.Printf("store:           available=%v memory-only=%v\n", snap.StoreAvailable, snap.StoreMemoryOnly)
		fmt.Printf("refresh:         active=%v failures=%d\n", snap.RefreshActive, snap.RefreshFailures)
		if snap.LastRefreshErr != "" {
			fmt.Printf("last refresh err: %s\n", snap.LastRefreshErr)
		}
		fmt.Printf("offline cache:   %v\n", snap.CacheSnapshot)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

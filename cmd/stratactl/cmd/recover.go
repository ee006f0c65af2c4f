package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Force the session back to a clean unauthenticated state",
	Long: `Drops every stored credential, resets the refresh failure budget and
returns the session to unauthenticated. The escape hatch for a wedged
client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		application.Diagnostics().ForceRecover(cmd.Context())
		fmt.Println("session reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

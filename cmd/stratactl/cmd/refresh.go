package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Manager().Refresh(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("token refreshed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

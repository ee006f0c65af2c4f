package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current user's profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		user, err := application.Manager().Profile(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("id:       %d\n", user.ID)
		fmt.Printf("username: %s\n", user.Username)
		if user.Email != "" {
			fmt.Printf("email:    %s\n", user.Email)
		}
		fmt.Printf("role:     %s\n", user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

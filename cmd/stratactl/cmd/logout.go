package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		application.Manager().Logout(cmd.Context(), domain.ReasonUserRequest)
		fmt.Println("logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

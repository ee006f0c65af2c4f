package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		manager := application.Manager()
		cancel := manager.Subscribe(func(s domain.SessionState) {
			application.Logger().Info("session state changed", "status", s.Status.String())
		})
		defer cancel()

		user, err := manager.Login(cmd.Context(), loginEmail, loginPassword)
		if err != nil {
			return err
		}

		fmt.Printf("logged in as %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(loginCmd)
}

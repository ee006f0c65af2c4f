package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darceymckelvey/codestrata-auth/pkg/authsdk"
)

var registerReq authsdk.RegisterRequest

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and start a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		user, err := application.Manager().Register(cmd.Context(), registerReq)
		if err != nil {
			return err
		}

		fmt.Printf("registered %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerReq.Username, "username", "", "login name")
	registerCmd.Flags().StringVar(&registerReq.Email, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerReq.Password, "password", "", "account password")
	registerCmd.Flags().StringVar(&registerReq.Role, "role", authsdk.RoleStudent, "account role")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(registerCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var githubPurpose string

var githubCmd = &cobra.Command{
	Use:   "github-url",
	Short: "Print the GitHub authorization URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		url, err := application.Manager().ExternalAuthURL(cmd.Context(), githubPurpose)
		if err != nil {
			return err
		}

		fmt.Println(url)
		return nil
	},
}

func init() {
	githubCmd.Flags().StringVar(&githubPurpose, "purpose", "login", "authorization purpose (login or connect)")
	rootCmd.AddCommand(githubCmd)
}

var (
	githubCode  string
	githubState string
)

var githubCompleteCmd = &cobra.Command{
	Use:   "github-complete",
	Short: "Complete a GitHub OAuth exchange with the redirect code",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		user, err := application.Manager().CompleteExternalAuth(cmd.Context(), githubCode, githubState)
		if err != nil {
			return err
		}

		if user != nil {
			fmt.Printf("logged in as %s via GitHub\n", user.Username)
		} else {
			fmt.Println("logged in via GitHub")
		}
		return nil
	},
}

func init() {
	githubCompleteCmd.Flags().StringVar(&githubCode, "code", "", "authorization code from the redirect")
	githubCompleteCmd.Flags().StringVar(&githubState, "state", "", "state parameter from the redirect")
	_ = githubCompleteCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(githubCompleteCmd)
}

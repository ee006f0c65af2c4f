package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/darceymckelvey/codestrata-auth/internal/session/app"
)

var rootCmd = &cobra.Command{
	Use:   "stratactl",
	Short: "stratactl manages a CodeStrata session from the terminal",
	Long: `stratactl authenticates against a CodeStrata backend and maintains the
local session: tiered token storage, automatic refresh, offline profile
cache and session diagnostics.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp builds the fully wired session application for a command run.
func newApp() (*app.Application, error) {
	application, err := app.New(app.LoadConfig())
	if err != nil {
		return nil, fmt.Errorf("initialize session core: %w", err)
	}
	return application, nil
}

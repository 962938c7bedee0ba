package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marqueectl",
		Short: "Marquee command line tools",
		Long: `marqueectl prints pagination windows and runs catalog searches
against the movie API, using the same code paths as the web server.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable completion command
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().Bool("json", false, "print JSON instead of text")

	cmd.AddCommand(newWindowCmd(), newSearchCmd())
	return cmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	// Load .env file if it exists, like the server does
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

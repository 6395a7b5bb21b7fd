package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcphub",
	Short: "Orchestrate MCP and web servers from a single hub",
	Long: `mcphub manages a fleet of local servers (MCP servers, command-line
processes, static sites): it starts and stops them, monitors their health
on a schedule, and exposes their status and lifecycle over an HTTP API.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid configuration, failed server starts)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcphub version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

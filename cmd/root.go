package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "ledgerdesk",
	Short: "Ledgerdesk transaction core",
	Long: `Ledgerdesk backend: customer snapshots, invoice and quote tax computation,
and payment allocation over the ledger API.

Run "ledgerdesk serve" to start the HTTP API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

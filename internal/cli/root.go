// Package cli implements the edge agent's command-line interface using
// Cobra. Each subcommand is a thin wrapper over the daemon's components.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "edgecore",
	Short: "edgecore — shield-tunneling edge prediction agent",
	Long: `edgecore aligns shield-tunneling machine telemetry into rings,
builds feature vectors, runs local settlement-prediction inference,
monitors model drift, and store-and-forwards everything to the cloud.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Package cmd contains the CLI commands for ppctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultServer is the default server address, can be overridden via
// the PLANTPULSE_SERVER env var.
var defaultServer = "http://localhost:8080"

func init() {
	if env := os.Getenv("PLANTPULSE_SERVER"); env != "" {
		defaultServer = env
	}
}

var (
	// Used for flags
	serverURL string
	verbose   bool
	output    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ppctl",
	Short: "PlantPulse - Industrial sensor monitoring control",
	Long: `ppctl is the command line client for a PlantPulse server.

It talks to the server's REST API to inspect and manage the
monitoring pipeline: submit readings, list and work alerts, and
inspect notification delivery.

Examples:
  # List open alerts
  ppctl alerts list --state open

  # Acknowledge an alert
  ppctl alerts ack 4f6b2c1d --actor alice

  # Submit a test reading
  ppctl readings send --device press-07 --sensor temperature --value 85.2 --unit "°C" --factory plant-a`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "server base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

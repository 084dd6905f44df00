// Package cli wires the tracklight command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tracklight",
	Short: "Tracklight analytics collection pipeline",
	Long: `tracklight runs the analytics event collection and batching pipeline.

The serve command starts a collector that receives event beacons, batches
them per tenant, and forwards batches to an ingestion backend. The seed
command generates synthetic traffic against a running collector.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/tracklight/config.yaml)")
}

// Package cli implements the Sorcha command-line interface using Cobra.
// Peer and register commands talk to a running node over its admin API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sorcha",
	Short: "Sorcha — distributed-ledger peer network node",
	Long: `Sorcha runs a peer-network node: it resolves its external address,
discovers peers from seed nodes, tracks per-peer connection quality, and
advertises the registers it holds to the network.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "Admin API address of the running node (host:port, overrides config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

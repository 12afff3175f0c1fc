package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(discoverCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node health and network statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Status           string  `json:"status"`
			TotalPeers       int     `json:"total_peers"`
			HealthyPeers     int     `json:"healthy_peers"`
			AverageLatencyMs float64 `json:"average_latency_ms"`
		}
		if err := apiGet("/healthz", &resp); err != nil {
			return err
		}

		fmt.Printf("Status:       %s\n", resp.Status)
		fmt.Printf("Peers:        %d known, %d healthy\n", resp.TotalPeers, resp.HealthyPeers)
		fmt.Printf("Avg latency:  %.0fms\n", resp.AverageLatencyMs)
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Trigger a discovery cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiPost("/api/discovery/run", nil, nil); err != nil {
			return err
		}
		fmt.Println("Discovery cycle scheduled.")
		return nil
	},
}

package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sorcha-network/sorcha/internal/domain"
)

func init() {
	peersCmd.AddCommand(peersListCmd)
	peersCmd.AddCommand(peersBanCmd)
	peersCmd.AddCommand(peersUnbanCmd)
	peersCmd.AddCommand(peersResetCmd)
	peersCmd.AddCommand(peersRemoveCmd)

	peersListCmd.Flags().BoolVar(&peersHealthyOnly, "healthy", false, "Show only healthy (non-banned) peers")
	peersBanCmd.Flags().StringVar(&banReason, "reason", "", "Reason recorded with the ban")

	rootCmd.AddCommand(peersCmd)
}

var (
	peersHealthyOnly bool
	banReason        string
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Inspect and administer the peer list",
}

var peersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List known peers",
	RunE:    runPeersList,
}

func runPeersList(cmd *cobra.Command, args []string) error {
	path := "/api/peers"
	if peersHealthyOnly {
		path = "/api/peers/healthy"
	}

	var resp struct {
		Peers []domain.PeerNode `json:"peers"`
	}
	if err := apiGet(path, &resp); err != nil {
		return err
	}

	if len(resp.Peers) == 0 {
		fmt.Println("No peers known. Configure seed nodes and run 'sorcha discover'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tENDPOINT\tFAILURES\tLATENCY\tBANNED\tLAST SEEN")
	for _, p := range resp.Peers {
		banned := "-"
		if p.IsBanned {
			banned = p.BanReason
			if banned == "" {
				banned = "yes"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0fms\t%s\t%s\n",
			p.PeerID,
			p.Endpoint(),
			p.FailureCount,
			p.AverageLatencyMs,
			banned,
			p.LastSeen.Format(time.RFC3339),
		)
	}
	return w.Flush()
}

var peersBanCmd = &cobra.Command{
	Use:   "ban PEER",
	Short: "Ban a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"reason": banReason}
		if err := apiPost("/api/peers/"+args[0]+"/ban", body, nil); err != nil {
			return err
		}
		fmt.Printf("Banned peer %s\n", args[0])
		return nil
	},
}

var peersUnbanCmd = &cobra.Command{
	Use:   "unban PEER",
	Short: "Lift a peer's ban",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiPost("/api/peers/"+args[0]+"/unban", nil, nil); err != nil {
			return err
		}
		fmt.Printf("Unbanned peer %s\n", args[0])
		return nil
	},
}

var peersResetCmd = &cobra.Command{
	Use:   "reset PEER",
	Short: "Reset a peer's consecutive-failure count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Previous int `json:"previous_failure_count"`
		}
		if err := apiPost("/api/peers/"+args[0]+"/reset-failures", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("Reset peer %s (was %d failures)\n", args[0], resp.Previous)
		return nil
	},
}

var peersRemoveCmd = &cobra.Command{
	Use:     "remove PEER",
	Aliases: []string{"rm"},
	Short:   "Remove a peer from the registry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiDelete("/api/peers/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed peer %s\n", args[0])
		return nil
	},
}

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
	registersCmd.AddCommand(registersListCmd)
	registersCmd.AddCommand(registersLocalCmd)
	registersCmd.AddCommand(registersAdvertiseCmd)
	registersCmd.AddCommand(registersWithdrawCmd)
	registersCmd.AddCommand(registersSubscribeCmd)

	registersAdvertiseCmd.Flags().StringVar(&advSyncState, "sync-state", string(domain.SyncActive), "Sync state (ACTIVE, SYNCING, FULLY_REPLICATED)")
	registersAdvertiseCmd.Flags().Uint64Var(&advVersion, "version", 0, "Latest version held locally")
	registersAdvertiseCmd.Flags().BoolVar(&advPublic, "public", true, "Advertise the register to the network")
	registersSubscribeCmd.Flags().StringVar(&subMode, "mode", string(domain.ModeForwardOnly), "Subscription mode (ForwardOnly, FullReplica)")

	subscriptionsCmd.AddCommand(subscriptionsListCmd)
	subscriptionsCmd.AddCommand(subscriptionsRemoveCmd)

	rootCmd.AddCommand(registersCmd)
	rootCmd.AddCommand(subscriptionsCmd)
}

var (
	advSyncState string
	advVersion   uint64
	advPublic    bool
	subMode      string
)

var registersCmd = &cobra.Command{
	Use:   "registers",
	Short: "Inspect and advertise registers",
}

var registersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registers advertised across the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Registers []domain.AdvertisedRegister `json:"registers"`
		}
		if err := apiGet("/api/registers", &resp); err != nil {
			return err
		}
		if len(resp.Registers) == 0 {
			fmt.Println("No registers advertised by healthy peers.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REGISTER\tPEERS\tLATEST VERSION")
		for _, r := range resp.Registers {
			fmt.Fprintf(w, "%s\t%d\t%d\n", r.RegisterID, r.PeerCount, r.LatestVersion)
		}
		return w.Flush()
	},
}

var registersLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "List registers this node advertises",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Registers []domain.PeerRegisterInfo `json:"registers"`
		}
		if err := apiGet("/api/registers/local", &resp); err != nil {
			return err
		}
		if len(resp.Registers) == 0 {
			fmt.Println("No local advertisements.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REGISTER\tSYNC STATE\tVERSION\tPUBLIC")
		for _, r := range resp.Registers {
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", r.RegisterID, r.SyncState, r.LatestVersion, r.IsPublic)
		}
		return w.Flush()
	},
}

var registersAdvertiseCmd = &cobra.Command{
	Use:   "advertise REGISTER",
	Short: "Advertise a register to the network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{
			"register_id":    args[0],
			"sync_state":     advSyncState,
			"latest_version": advVersion,
			"is_public":      advPublic,
		}
		if err := apiPost("/api/registers", body, nil); err != nil {
			return err
		}
		fmt.Printf("Advertising register %s (%s, v%d)\n", args[0], advSyncState, advVersion)
		return nil
	},
}

var registersWithdrawCmd = &cobra.Command{
	Use:   "withdraw REGISTER",
	Short: "Stop advertising a register",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiDelete("/api/registers/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("Withdrew register %s\n", args[0])
		return nil
	},
}

var registersSubscribeCmd = &cobra.Command{
	Use:   "subscribe REGISTER",
	Short: "Subscribe this node to a register",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sub domain.RegisterSubscription
		if err := apiPost("/api/registers/"+args[0]+"/subscribe", map[string]string{"mode": subMode}, &sub); err != nil {
			return err
		}
		fmt.Printf("Subscribed to %s (%s, subscription %s)\n", sub.RegisterID, sub.Mode, sub.ID)
		return nil
	},
}

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Manage register subscriptions",
}

var subscriptionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List active subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Subscriptions []domain.RegisterSubscription `json:"subscriptions"`
		}
		if err := apiGet("/api/subscriptions", &resp); err != nil {
			return err
		}
		if len(resp.Subscriptions) == 0 {
			fmt.Println("No active subscriptions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tREGISTER\tMODE\tCREATED")
		for _, s := range resp.Subscriptions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.RegisterID, s.Mode, s.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var subscriptionsRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Cancel a subscription",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiDelete("/api/subscriptions/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("Cancelled subscription %s\n", args[0])
		return nil
	},
}

package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sorcha-network/sorcha/internal/domain"
)

func init() {
	qualityCmd.Flags().IntVarP(&bestN, "best", "n", 0, "Show only the N best-scoring peers")
	rootCmd.AddCommand(qualityCmd)
}

var bestN int

var qualityCmd = &cobra.Command{
	Use:   "quality [PEER]",
	Short: "Show per-peer connection quality",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQuality,
}

func runQuality(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		var q domain.ConnectionQuality
		if err := apiGet("/api/quality/"+args[0], &q); err != nil {
			return err
		}
		printQualities([]domain.ConnectionQuality{q})
		return nil
	}

	var resp struct {
		Qualities map[string]domain.ConnectionQuality `json:"qualities"`
	}
	if err := apiGet("/api/quality", &resp); err != nil {
		return err
	}
	if len(resp.Qualities) == 0 {
		fmt.Println("No quality data recorded yet.")
		return nil
	}

	list := make([]domain.ConnectionQuality, 0, len(resp.Qualities))
	for _, q := range resp.Qualities {
		list = append(list, q)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].QualityScore != list[j].QualityScore {
			return list[i].QualityScore > list[j].QualityScore
		}
		return list[i].PeerID < list[j].PeerID
	})
	if bestN > 0 && bestN < len(list) {
		list = list[:bestN]
	}
	printQualities(list)
	return nil
}

func printQualities(list []domain.ConnectionQuality) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tSCORE\tRATING\tSUCCESS\tAVG\tMIN\tMAX")
	for _, q := range list {
		fmt.Fprintf(w, "%s\t%.0f\t%s\t%.0f%% (%d/%d)\t%.0fms\t%.0fms\t%.0fms\n",
			q.PeerID,
			q.QualityScore,
			q.QualityRating,
			q.SuccessRate*100,
			q.SuccessfulRequests,
			q.TotalRequests,
			q.AverageLatencyMs,
			q.MinLatencyMs,
			q.MaxLatencyMs,
		)
	}
	w.Flush()
}

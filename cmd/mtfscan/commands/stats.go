package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show signal performance",
	Long: `Prints win-rate summaries over the last day, week and month.

Won and lost counts come from evaluated signal outcomes; expired
signals are listed but excluded from the win rate.

Example:
  go run ./cmd/mtfscan stats`,
	RunE: showStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func showStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	summaries, err := a.stats.SummarizeAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	fmt.Println("Signal performance:")
	fmt.Println()
	for _, s := range summaries {
		fmt.Printf("📊 %s\n", s.Period)
		fmt.Printf("   Won: %d  Lost: %d  Expired: %d\n", s.Won, s.Lost, s.Expired)
		if s.Won+s.Lost > 0 {
			fmt.Printf("   Win rate: %.1f%%\n", s.WinRate)
		} else {
			fmt.Println("   Win rate: n/a")
		}
		fmt.Println()
	}

	return nil
}

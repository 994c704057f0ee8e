package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle and exit",
	Long: `Runs a single scan over the Binance futures universe.

The cycle lists active USDT pairs, evaluates each symbol on the
1H/15M/5M timeframes, ranks the candidates and publishes the top
three as premium, plus and free signals to eligible subscribers.

Example:
  go run ./cmd/mtfscan scan`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Println("=== MTF Scan (single cycle) ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	if err := a.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	start := time.Now()
	if err := a.scanner.Scan(ctx); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	fmt.Printf("\n✅ Scan finished in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

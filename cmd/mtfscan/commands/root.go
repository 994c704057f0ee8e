package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "mtfscan",
	Short: "Multi-timeframe futures signal scanner",
	Long: `MTF Scan - crypto futures signal engine

Scans Binance USDT-M futures across three timeframes, scores setups,
publishes tiered signals to Telegram subscribers and manages the
subscription and referral lifecycle.

Usage:
  go run ./cmd/mtfscan [command]

Examples:
  go run ./cmd/mtfscan start
  go run ./cmd/mtfscan scan
  go run ./cmd/mtfscan scheduler list
  go run ./cmd/mtfscan stats`,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

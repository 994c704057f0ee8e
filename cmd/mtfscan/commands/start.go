package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/mtfscan/backend/internal/api"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the full signal engine",
	Long: `Starts every component of the signal engine in one process.

This command runs:
- the market scanner loop (Binance futures, multi-timeframe)
- the live price stream (when Redis is configured)
- the maintenance scheduler (plan expiry, signal purge, health check)
- the REST API server

Example:
  go run ./cmd/mtfscan start
  go run ./cmd/mtfscan start --port 8090`,
	RunE: runStart,
}

var startPort string

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVar(&startPort, "port", "", "API server port (overrides PORT)")
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== MTF Scan Engine ===")

	// 1. Wire the application
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if startPort != "" {
		a.cfg.Port = startPort
	}

	log := a.logger
	log.WithFields(map[string]interface{}{
		"port":          a.cfg.Port,
		"scan_interval": a.cfg.Scanner.Interval.String(),
		"redis":         a.redis.Enabled(),
	}).Info("Starting engine")

	// 2. Make sure the schema exists
	schemaCtx, cancelSchema := context.WithTimeout(cmd.Context(), 30*time.Second)
	err = a.store.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Scanner loop
	go a.scanner.Run(ctx)
	log.Info("Scanner started")

	// 4. Price stream keeps the cache warm between scans
	if a.redis.Enabled() {
		go a.stream.Run(ctx)
		log.Info("Price stream started")
	}

	// 5. Maintenance scheduler
	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	log.WithField("jobs", len(sched.JobNames())).Info("Scheduler started")

	// 6. API server
	handler := api.NewHandler(a.db, a.store.Signals(), a.stats, a.subs, a.distributor, sched, log)
	server := api.NewServer(a.cfg, log, api.NewRouter(handler, log))

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start API server")
		}
	}()

	fmt.Printf("\n✅ Engine running, API on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Engine stopped")
	return nil
}

// Command aaiclick is the orchestrator's CLI: schema migrations, worker
// processes, and the background cleanup sweeper.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kolodkin/aaiclick-sub000/internal/config"
	"github.com/kolodkin/aaiclick-sub000/internal/logging"
	"github.com/kolodkin/aaiclick-sub000/internal/otelinit"
)

var rootCmd = &cobra.Command{
	Use:   "aaiclick",
	Short: "Distributed DAG task orchestrator: Postgres-backed state store, ClickHouse data plane.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(backgroundCmd)
}

// loadConfig resolves and validates the process configuration, then wires
// up logging. Every subcommand calls this first.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := logging.Init("aaiclick")
	return cfg, logger, nil
}

// rootContext returns a context cancelled on SIGINT/SIGTERM, and a
// shutdown func that flushes OTel exporters.
func rootContext(ctx context.Context, service string) (context.Context, func()) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	flushTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, service)
	return ctx, func() {
		stop()
		otelinit.Flush(context.Background(), flushTrace)
		_ = shutdownMetrics(context.Background())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("aaiclick: command failed", "error", err)
		os.Exit(1)
	}
}

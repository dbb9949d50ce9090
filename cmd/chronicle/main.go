package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chronicle-dev/chronicle/buildinfo"
	"github.com/chronicle-dev/chronicle/internal/config"
	"github.com/chronicle-dev/chronicle/pkg/logging"
	"github.com/chronicle-dev/chronicle/pkg/metrics"
)

var (
	configPath string
	debug      bool
	trace      bool
	metricsPort string
)

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Chronicle is a blockchain event indexer",
	Long:  "Chronicle connects to EVM-compatible RPC endpoints, backfills and tails logs, and serves them over a small read API.",
	Args:  cobra.ExactArgs(0),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config-path", ".config.toml", "path to the TOML configuration file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&trace, "trace", false, "enable trace logging (very verbose)")
	rootCmd.Flags().StringVar(&metricsPort, "metrics-port", "9090", "port serving /metrics")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	logging.SetupLogger(buildinfo.GitCommit, debug, trace, true)

	summary := buildinfo.GetSummary()
	log.Info().Str("build", summary.String()).Msg("starting chronicle")

	if err := metrics.SetupInstrumentation(":"+metricsPort, "chronicle"); err != nil {
		log.Error().Err(err).Msg("could not set up instrumentation, continuing without it")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Str("config_path", configPath).Msg("failed to load configuration")
		return fmt.Errorf("loading configuration: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	tasks, err := buildTasks(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build tasks")
		return fmt.Errorf("building tasks: %s", err)
	}

	runSupervisor(ctx, tasks)

	log.Info().Msg("chronicle shutdown complete")
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/glucoracle/internal/config"
	"github.com/rewired-gh/glucoracle/internal/logger"
	"github.com/rewired-gh/glucoracle/internal/storage"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "glucoracle",
	Short: "CGM event metrics and question answerability",
	Long: `glucoracle computes per-event glycemic response metrics from a CGM time series
and decides whether a causal question can be answered with the available data.

Examples:
  glucoracle metrics series.json events.json metrics.json --store
  glucoracle evaluate question.json events.json metrics.json
  glucoracle sets list --subject subj_001`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = c

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Debug("Configuration loaded from %s", configPath)
	}
	return nil
}

// openStore opens the metric set store configured in storage.db_path.
func openStore() (*storage.Storage, error) {
	store, err := storage.New(cfg.Storage.DBPath, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

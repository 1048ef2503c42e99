package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/glucoracle/internal/logger"
	"github.com/rewired-gh/glucoracle/internal/metrics"
	"github.com/rewired-gh/glucoracle/internal/schema"
	"github.com/rewired-gh/glucoracle/internal/storage"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <timeseries.json> <events.json> <output.json>",
	Short: "Compute per-event metrics",
	Long: `Compute baseline glucose, delta peak, iAUC, time to peak and recovery slope
for every event and write the metrics collection to output.json.

Metrics that cannot be computed for an event are omitted and listed under warnings.

Examples:
  glucoracle metrics series.json events.json metrics.json
  glucoracle metrics series.json events.json metrics.json --metric-set-id ms_week1 --store`,
	Args: cobra.ExactArgs(3),
	RunE: runMetrics,
}

var (
	metricSetID   string
	storeMetrics  bool
	verboseOutput bool
)

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.Flags().StringVar(&metricSetID, "metric-set-id", "", "Metric set ID (default: generated)")
	metricsCmd.Flags().BoolVar(&storeMetrics, "store", false, "Also save the metric set to the store")
	metricsCmd.Flags().BoolVarP(&verboseOutput, "verbose", "v", false, "Log per-event progress")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	if verboseOutput {
		logger.Init("debug", cfg.Logging.Format)
	}

	series, err := schema.ReadFile(args[0], schema.DecodeTimeSeries)
	if err != nil {
		return err
	}
	events, err := schema.ReadFile(args[1], schema.DecodeEvents)
	if err != nil {
		return err
	}

	if series.SubjectID != "" && events.SubjectID != "" && series.SubjectID != events.SubjectID {
		logger.Warn("Subject mismatch: time series is %s, events are %s", series.SubjectID, events.SubjectID)
	}

	id := metricSetID
	if id == "" {
		id = cfg.Metrics.MetricSetPrefix + "_" + uuid.NewString()
	}

	engine := metrics.New(nil, cfg.Metrics.Workers)
	collection, err := engine.Run(cmd.Context(), series, events, id)
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	if err := storage.WriteJSONFile(args[2], collection, 0o644, 0o755); err != nil {
		return err
	}
	logger.Info("Wrote %d metrics for %d events to %s (%d warnings)",
		len(collection.Metrics), len(events.Events), args[2], len(collection.Warnings))

	if !storeMetrics {
		return nil
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := store.SaveMetricSet(cmd.Context(), &collection); err != nil {
		return err
	}
	logger.Info("Saved metric set %s to %s", collection.MetricSetID, store.Path())

	if cfg.Storage.MaxMetricSetsPerSubject > 0 {
		removed, err := store.RotateMetricSets(cmd.Context(), cfg.Storage.MaxMetricSetsPerSubject)
		if err != nil {
			logger.Warn("Failed to rotate metric sets: %v", err)
		} else if removed > 0 {
			logger.Info("Rotated %d old metric sets", removed)
		}
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/glucoracle/internal/answerability"
	"github.com/rewired-gh/glucoracle/internal/logger"
	"github.com/rewired-gh/glucoracle/internal/models"
	"github.com/rewired-gh/glucoracle/internal/schema"
	"github.com/rewired-gh/glucoracle/internal/storage"
	"github.com/rewired-gh/glucoracle/internal/telegram"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <question.json> <events.json> [metrics.json]",
	Short: "Decide whether a question is answerable",
	Long: `Evaluate a causal question against an events document and a metrics collection.

Metrics come from the metrics.json argument or, with --metric-set, from the store.
Without either, every matched event is reported as missing its metric.

Examples:
  glucoracle evaluate question.json events.json metrics.json
  glucoracle evaluate question.json events.json --metric-set ms_week1 --output verdict.json
  glucoracle evaluate question.json events.json metrics.json --notify`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runEvaluate,
}

var (
	evalMetricSet string
	evalOutput    string
	evalNotify    bool
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evalMetricSet, "metric-set", "", "Load metrics from the store by metric set ID")
	evaluateCmd.Flags().StringVarP(&evalOutput, "output", "o", "", "Write the result to a file instead of stdout")
	evaluateCmd.Flags().BoolVar(&evalNotify, "notify", false, "Send the verdict to Telegram")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if len(args) == 3 && evalMetricSet != "" {
		return fmt.Errorf("metrics.json and --metric-set are mutually exclusive")
	}

	question, err := schema.ReadFile(args[0], schema.DecodeQuestion)
	if err != nil {
		return err
	}
	events, err := schema.ReadFile(args[1], schema.DecodeEvents)
	if err != nil {
		return err
	}

	collection, err := loadMetrics(cmd, args)
	if err != nil {
		return err
	}

	a := cfg.Answerability
	evaluator := answerability.New(answerability.Options{
		MinEventsPerGroup:           a.MinEventsPerGroup,
		MinMetricCoverage:           a.MinMetricCoverage,
		MinIsolationMinutes:         a.MinIsolationMinutes,
		DefaultEventDurationMinutes: a.DefaultEventDurationMinutes,
	})
	result := evaluator.Evaluate(question, events, collection)
	logger.Info("Question %s answerable=%t (%d reasons)", result.QuestionID, result.Answerable, len(result.Reasons))

	if evalOutput != "" {
		if err := storage.WriteJSONFile(evalOutput, result, 0o644, 0o755); err != nil {
			return err
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	if evalNotify {
		return notify(cmd, &result)
	}
	return nil
}

func loadMetrics(cmd *cobra.Command, args []string) (*models.MetricsCollection, error) {
	if len(args) == 3 {
		return schema.ReadFile(args[2], schema.DecodeMetrics)
	}
	if evalMetricSet == "" {
		logger.Warn("No metrics supplied; every matched event will be missing its metric")
		return nil, nil
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore(store)

	return store.GetMetricSet(cmd.Context(), evalMetricSet)
}

func notify(cmd *cobra.Command, result *models.AnswerabilityResult) error {
	if !cfg.Telegram.Enabled {
		logger.Warn("--notify ignored: telegram is not enabled")
		return nil
	}
	client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	if err := client.SendVerdict(cmd.Context(), result); err != nil {
		return fmt.Errorf("failed to send verdict: %w", err)
	}
	logger.Info("Sent verdict for question %s", result.QuestionID)
	return nil
}

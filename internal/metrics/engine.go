package metrics

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/rewired-gh/glucoracle/internal/digest"
	"github.com/rewired-gh/glucoracle/internal/logger"
	"github.com/rewired-gh/glucoracle/internal/models"
	"golang.org/x/sync/errgroup"
)

// SchemaVersion is stamped on every metrics collection.
const SchemaVersion = "1.0.0"

// Omission records a metric that could not be computed for an event.
type Omission struct {
	EventID    string
	MetricName string
	Err        error
}

func (o Omission) Error() string {
	return fmt.Sprintf("metric %s omitted for event %s: %v", o.MetricName, o.EventID, o.Err)
}

// Reason is the short explanation written into collection warnings.
func (o Omission) Reason() string {
	var insufficient *InsufficientDataError
	if errors.As(o.Err, &insufficient) {
		return insufficient.Reason
	}
	return o.Err.Error()
}

// Engine runs every calculator for every event.
type Engine struct {
	calc    *Calculator
	workers int
}

// New creates an Engine. workers <= 0 uses GOMAXPROCS; a nil calculator uses the wall clock.
func New(calc *Calculator, workers int) *Engine {
	if calc == nil {
		calc = NewCalculator()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{calc: calc, workers: workers}
}

// CalculateAll runs all five calculators for one event with default windows.
// A failing calculator does not stop the others; its failure is returned as an omission.
func (e *Engine) CalculateAll(series *models.TimeSeries, event *models.Event) ([]models.MetricResult, []Omission) {
	type run struct {
		name string
		fn   func() (models.MetricResult, error)
	}
	runs := []run{
		{models.MetricBaselineGlucose, func() (models.MetricResult, error) {
			return e.calc.BaselineGlucose(series, event, models.BaselineWindow())
		}},
		{models.MetricDeltaPeak, func() (models.MetricResult, error) {
			return e.calc.DeltaPeak(series, event, models.BaselineWindow(), models.ResponseWindow())
		}},
		{models.MetricIAUC, func() (models.MetricResult, error) {
			return e.calc.IAUC(series, event, models.BaselineWindow(), models.ResponseWindow())
		}},
		{models.MetricTimeToPeak, func() (models.MetricResult, error) {
			return e.calc.TimeToPeak(series, event, models.ResponseWindow())
		}},
		{models.MetricRecoverySlope, func() (models.MetricResult, error) {
			return e.calc.RecoverySlope(series, event, models.ResponseWindow(), models.RecoveryWindow())
		}},
	}

	var results []models.MetricResult
	var omissions []Omission
	for _, r := range runs {
		result, err := r.fn()
		if err != nil {
			omission := Omission{EventID: event.EventID, MetricName: r.name, Err: err}
			if errors.Is(err, ErrInsufficientData) {
				logger.Warn("Skipping %s for event %s: %v", r.name, event.EventID, err)
			} else {
				logger.Error("Failed to compute %s for event %s: %v", r.name, event.EventID, err)
			}
			omissions = append(omissions, omission)
			continue
		}
		results = append(results, result)
	}
	return results, omissions
}

// Run computes metrics for every event in doc on a bounded worker pool.
// Output keeps event order. Per-event omissions become warnings keyed by event ID;
// only cancellation is an error.
func (e *Engine) Run(ctx context.Context, series *models.TimeSeries, doc *models.EventsDocument, metricSetID string) (models.MetricsCollection, error) {
	perEvent := make([][]models.MetricResult, len(doc.Events))
	omitted := make([][]Omission, len(doc.Events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range doc.Events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perEvent[i], omitted[i] = e.CalculateAll(series, &doc.Events[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.MetricsCollection{}, fmt.Errorf("metrics run interrupted: %w", err)
	}

	subjectID := doc.SubjectID
	if subjectID == "" {
		subjectID = series.SubjectID
	}
	collection := models.MetricsCollection{
		SchemaVersion: SchemaVersion,
		MetricSetID:   metricSetID,
		SubjectID:     subjectID,
		TimeZone:      doc.TimeZone,
		SeriesID:      series.SeriesID,
		GeneratedAt:   e.calc.now(),
		Metrics:       []models.MetricResult{},
	}

	for i, results := range perEvent {
		collection.Metrics = append(collection.Metrics, results...)
		if len(omitted[i]) == 0 {
			continue
		}
		if collection.Warnings == nil {
			collection.Warnings = make(map[string]string)
		}
		parts := make([]string, len(omitted[i]))
		for j, o := range omitted[i] {
			parts[j] = o.MetricName + ": " + o.Reason()
		}
		collection.Warnings[doc.Events[i].EventID] = strings.Join(parts, "; ")
	}

	sum, err := digest.Digest(collection.Metrics)
	if err != nil {
		return models.MetricsCollection{}, fmt.Errorf("failed to digest metrics: %w", err)
	}
	collection.MetricsDigest = sum

	logger.Info("Computed %d metrics for %d events (%d with warnings)",
		len(collection.Metrics), len(doc.Events), len(collection.Warnings))
	return collection, nil
}

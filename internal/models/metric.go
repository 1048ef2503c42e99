package models

import (
	"errors"
	"time"
)

// Metric names produced by the metrics engine.
const (
	MetricBaselineGlucose = "baseline_glucose"
	MetricDeltaPeak       = "delta_peak"
	MetricIAUC            = "iAUC"
	MetricTimeToPeak      = "time_to_peak"
	MetricRecoverySlope   = "recovery_slope"
)

// MetricNames lists every metric the engine computes, in computation order.
func MetricNames() []string {
	return []string{
		MetricBaselineGlucose,
		MetricDeltaPeak,
		MetricIAUC,
		MetricTimeToPeak,
		MetricRecoverySlope,
	}
}

// IsKnownMetric reports whether name is one of MetricNames.
func IsKnownMetric(name string) bool {
	for _, known := range MetricNames() {
		if known == name {
			return true
		}
	}
	return false
}

// Window quality flags.
const (
	FlagLowCoverage  = "low_coverage"
	FlagMissingData  = "missing_data"
	FlagInterpolated = "interpolated"
)

// QualitySummary carries metric-specific diagnostics. Fields that do not apply to
// a metric are left nil or zero and omitted from JSON.
type QualitySummary struct {
	WindowSamples                  int        `json:"window_samples,omitempty"`
	ExpectedSamples                int        `json:"expected_samples,omitempty"`
	CoveragePercentage             *float64   `json:"coverage_percentage,omitempty"`
	PeakGlucose                    *float64   `json:"peak_glucose,omitempty"`
	BaselineGlucose                *float64   `json:"baseline_glucose,omitempty"`
	PeakTime                       *time.Time `json:"peak_time,omitempty"`
	EventStart                     *time.Time `json:"event_start,omitempty"`
	PositiveArea                   *float64   `json:"positive_area,omitempty"`
	RecoveryStart                  *float64   `json:"recovery_start,omitempty"`
	RecoveryEnd                    *float64   `json:"recovery_end,omitempty"`
	ReturnTowardBaselinePercentage *float64   `json:"return_toward_baseline_percentage,omitempty"`
	PeakWindowSamples              int        `json:"peak_window_samples,omitempty"`
	PeakExpectedSamples            int        `json:"peak_expected_samples,omitempty"`
	RecoveryWindowSamples          int        `json:"recovery_window_samples,omitempty"`
	RecoveryExpectedSamples        int        `json:"recovery_expected_samples,omitempty"`
	PeakCoveragePercentage         *float64   `json:"peak_coverage_percentage,omitempty"`
	RecoveryCoveragePercentage     *float64   `json:"recovery_coverage_percentage,omitempty"`
}

// MetricResult is one computed metric for one event and window.
type MetricResult struct {
	EventID        string         `json:"event_id"`
	MetricName     string         `json:"metric_name"`
	MetricVersion  string         `json:"metric_version"`
	Window         MetricWindow   `json:"window"`
	Value          float64        `json:"value"`
	Unit           string         `json:"unit"`
	ComputedAt     time.Time      `json:"computed_at"`
	Method         string         `json:"method"`
	CoverageRatio  float64        `json:"coverage_ratio"`
	QualityFlags   []string       `json:"quality_flags"`
	QualitySummary QualitySummary `json:"quality_summary"`
}

// Validate checks that the metric result fields are valid
func (m *MetricResult) Validate() error {
	if m.EventID == "" {
		return errors.New("metric event ID must not be empty")
	}
	if m.MetricName == "" {
		return errors.New("metric name must not be empty")
	}
	if m.CoverageRatio < 0.0 || m.CoverageRatio > 1.0 {
		return errors.New("coverage ratio must be between 0.0 and 1.0")
	}
	return nil
}

// MetricsCollection is the output of one metrics run over an events document.
type MetricsCollection struct {
	SchemaVersion string            `json:"schema_version"`
	MetricSetID   string            `json:"metric_set_id"`
	SubjectID     string            `json:"subject_id"`
	TimeZone      string            `json:"time_zone"`
	SeriesID      string            `json:"series_id,omitempty"`
	GeneratedAt   time.Time         `json:"generated_at"`
	MetricsDigest string            `json:"metrics_digest,omitempty"`
	Metrics       []MetricResult    `json:"metrics"`
	Warnings      map[string]string `json:"warnings,omitempty"`
}

// Validate checks every metric in the collection.
func (c *MetricsCollection) Validate() error {
	for i := range c.Metrics {
		if err := c.Metrics[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ByEvent indexes metrics by event ID, preserving collection order per event.
func (c *MetricsCollection) ByEvent() map[string][]MetricResult {
	index := make(map[string][]MetricResult)
	for _, metric := range c.Metrics {
		if metric.EventID == "" {
			continue
		}
		index[metric.EventID] = append(index[metric.EventID], metric)
	}
	return index
}

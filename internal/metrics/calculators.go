// Package metrics computes windowed glycemic-response metrics around events.
//
// Every metric is anchored to the event start and reports the window it used, the
// fraction of expected CGM samples present (coverage), quality flags and a
// computation version. Versions are bumped whenever a formula changes so metrics
// from different runs stay comparable.
//
// Metrics:
//
//	baseline_glucose  mean glucose in [-30, 0]
//	delta_peak        max glucose in [0, 180] minus baseline
//	iAUC              trapezoidal area of max(v - baseline, 0) over [0, 180]
//	time_to_peak      minutes from event start to the first maximum in [0, 180]
//	recovery_slope    least-squares slope of glucose over [120, 240]
//
// A window without enough samples yields an *InsufficientDataError; the Engine
// turns those into omissions instead of failing the whole event.
package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/glucoracle/internal/models"
)

// Computation versions, bumped whenever a formula changes.
const (
	BaselineGlucoseVersion = "1.0.0"
	DeltaPeakVersion       = "1.0.0"
	IAUCVersion            = "1.0.0"
	TimeToPeakVersion      = "1.0.0"
	RecoverySlopeVersion   = "1.0.0"
)

// Calculator computes individual metrics. The zero value is not usable; use NewCalculator.
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a Calculator stamping results with the wall clock.
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// NewCalculatorWithClock creates a Calculator with a fixed clock, for reproducible output.
func NewCalculatorWithClock(now func() time.Time) *Calculator {
	return &Calculator{now: now}
}

func percentage(ratio float64) *float64 {
	pct := math.Round(ratio*1000) / 10
	return &pct
}

func ptr[T any](v T) *T { return &v }

// firstPeak returns the index of the first maximum value.
func firstPeak(samples []models.Sample) int {
	peak := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].GlucoseValue > samples[peak].GlucoseValue {
			peak = i
		}
	}
	return peak
}

func minutesBetween(from, to time.Time) float64 {
	return to.Sub(from).Minutes()
}

// BaselineGlucose is the mean glucose in the window.
func (c *Calculator) BaselineGlucose(series *models.TimeSeries, event *models.Event, window models.WindowSpec) (models.MetricResult, error) {
	x := Extract(series, event.StartTime, window)
	if len(x.Samples) == 0 {
		return models.MetricResult{}, insufficient(models.MetricBaselineGlucose, event.EventID, "no CGM data in baseline window %s", window)
	}

	var sum float64
	for _, s := range x.Samples {
		sum += s.GlucoseValue
	}
	baseline := sum / float64(len(x.Samples))

	return models.MetricResult{
		EventID:       event.EventID,
		MetricName:    models.MetricBaselineGlucose,
		MetricVersion: BaselineGlucoseVersion,
		Window:        models.SingleWindow(window),
		Value:         baseline,
		Unit:          series.Unit,
		ComputedAt:    c.now(),
		Method:        fmt.Sprintf("Mean glucose in %s window %s minutes", window.RelativeTo, window),
		CoverageRatio: x.CoverageRatio,
		QualityFlags:  x.QualityFlags,
		QualitySummary: models.QualitySummary{
			WindowSamples:      len(x.Samples),
			ExpectedSamples:    x.ExpectedSamples,
			CoveragePercentage: percentage(x.CoverageRatio),
		},
	}, nil
}

// DeltaPeak is the maximum in the peak window minus the baseline. Ties resolve to
// the earliest sample.
func (c *Calculator) DeltaPeak(series *models.TimeSeries, event *models.Event, baselineWindow, peakWindow models.WindowSpec) (models.MetricResult, error) {
	baseline, err := c.BaselineGlucose(series, event, baselineWindow)
	if err != nil {
		return models.MetricResult{}, err
	}

	x := Extract(series, event.StartTime, peakWindow)
	if len(x.Samples) == 0 {
		return models.MetricResult{}, insufficient(models.MetricDeltaPeak, event.EventID, "no CGM data in peak window %s", peakWindow)
	}

	peak := x.Samples[firstPeak(x.Samples)]
	delta := peak.GlucoseValue - baseline.Value

	return models.MetricResult{
		EventID:       event.EventID,
		MetricName:    models.MetricDeltaPeak,
		MetricVersion: DeltaPeakVersion,
		Window:        models.MetricWindow{Baseline: ptr(baselineWindow), Peak: ptr(peakWindow)},
		Value:         delta,
		Unit:          series.Unit,
		ComputedAt:    c.now(),
		Method: fmt.Sprintf("Peak glucose in %s minutes minus mean baseline glucose in %s minutes",
			peakWindow, baselineWindow),
		CoverageRatio: x.CoverageRatio,
		QualityFlags:  newFlagSet(baseline.QualityFlags, x.QualityFlags).sorted(),
		QualitySummary: models.QualitySummary{
			PeakGlucose:        ptr(peak.GlucoseValue),
			BaselineGlucose:    ptr(baseline.Value),
			PeakTime:           ptr(peak.Timestamp),
			WindowSamples:      len(x.Samples),
			ExpectedSamples:    x.ExpectedSamples,
			CoveragePercentage: percentage(x.CoverageRatio),
		},
	}, nil
}

// IAUC integrates the positive excess over baseline with the trapezoid rule.
// Each sample is clamped at zero before integrating, so a segment crossing the
// baseline contributes the area between its clamped endpoints.
func (c *Calculator) IAUC(series *models.TimeSeries, event *models.Event, baselineWindow, aucWindow models.WindowSpec) (models.MetricResult, error) {
	baseline, err := c.BaselineGlucose(series, event, baselineWindow)
	if err != nil {
		return models.MetricResult{}, err
	}

	x := Extract(series, event.StartTime, aucWindow)
	if len(x.Samples) < 2 {
		return models.MetricResult{}, insufficient(models.MetricIAUC, event.EventID,
			"need at least 2 samples in AUC window %s, found %d", aucWindow, len(x.Samples))
	}

	excess := make([]float64, len(x.Samples))
	for i, s := range x.Samples {
		excess[i] = math.Max(s.GlucoseValue-baseline.Value, 0)
	}
	var area float64
	for i := 0; i+1 < len(x.Samples); i++ {
		dt := minutesBetween(x.Samples[i].Timestamp, x.Samples[i+1].Timestamp)
		area += (excess[i] + excess[i+1]) / 2 * dt
	}

	return models.MetricResult{
		EventID:       event.EventID,
		MetricName:    models.MetricIAUC,
		MetricVersion: IAUCVersion,
		Window:        models.MetricWindow{Baseline: ptr(baselineWindow), AUC: ptr(aucWindow)},
		Value:         area,
		Unit:          series.Unit + " * minutes",
		ComputedAt:    c.now(),
		Method: fmt.Sprintf("Incremental area above baseline by trapezoid rule over %d samples in %s minutes",
			len(x.Samples), aucWindow),
		CoverageRatio: x.CoverageRatio,
		QualityFlags:  newFlagSet(baseline.QualityFlags, x.QualityFlags).sorted(),
		QualitySummary: models.QualitySummary{
			BaselineGlucose:    ptr(baseline.Value),
			PositiveArea:       ptr(area),
			WindowSamples:      len(x.Samples),
			ExpectedSamples:    x.ExpectedSamples,
			CoveragePercentage: percentage(x.CoverageRatio),
		},
	}, nil
}

// TimeToPeak is the minutes from event start to the first maximum in the window.
func (c *Calculator) TimeToPeak(series *models.TimeSeries, event *models.Event, window models.WindowSpec) (models.MetricResult, error) {
	x := Extract(series, event.StartTime, window)
	if len(x.Samples) == 0 {
		return models.MetricResult{}, insufficient(models.MetricTimeToPeak, event.EventID, "no CGM data in window %s", window)
	}

	peak := x.Samples[firstPeak(x.Samples)]
	minutes := minutesBetween(event.StartTime, peak.Timestamp)

	return models.MetricResult{
		EventID:       event.EventID,
		MetricName:    models.MetricTimeToPeak,
		MetricVersion: TimeToPeakVersion,
		Window:        models.SingleWindow(window),
		Value:         minutes,
		Unit:          models.UnitMinute,
		ComputedAt:    c.now(),
		Method: fmt.Sprintf("Minutes from event start %s to first maximum glucose at %s",
			event.StartTime.Format(time.RFC3339), peak.Timestamp.Format(time.RFC3339)),
		CoverageRatio: x.CoverageRatio,
		QualityFlags:  x.QualityFlags,
		QualitySummary: models.QualitySummary{
			PeakGlucose:        ptr(peak.GlucoseValue),
			PeakTime:           ptr(peak.Timestamp),
			EventStart:         ptr(event.StartTime),
			WindowSamples:      len(x.Samples),
			ExpectedSamples:    x.ExpectedSamples,
			CoveragePercentage: percentage(x.CoverageRatio),
		},
	}, nil
}

// linearFit returns the least-squares slope and intercept of ys over xs.
func linearFit(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= n
	meanY /= n

	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - meanX
		sxy += dx * (ys[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, meanY
	}
	slope = sxy / sxx
	return slope, meanY - slope*meanX
}

// RecoverySlope fits glucose against minutes from the middle sample of the
// recovery window. The value is the raw regression slope: falling glucose gives a
// negative slope.
func (c *Calculator) RecoverySlope(series *models.TimeSeries, event *models.Event, peakWindow, recoveryWindow models.WindowSpec) (models.MetricResult, error) {
	peakX := Extract(series, event.StartTime, peakWindow)
	recoveryX := Extract(series, event.StartTime, recoveryWindow)

	if len(peakX.Samples) == 0 {
		return models.MetricResult{}, insufficient(models.MetricRecoverySlope, event.EventID, "no CGM data in peak window %s", peakWindow)
	}
	if len(recoveryX.Samples) < 2 {
		return models.MetricResult{}, insufficient(models.MetricRecoverySlope, event.EventID,
			"need at least 2 samples in recovery window %s, found %d", recoveryWindow, len(recoveryX.Samples))
	}

	peak := peakX.Samples[firstPeak(peakX.Samples)].GlucoseValue

	center := recoveryX.Samples[len(recoveryX.Samples)/2].Timestamp
	xs := make([]float64, len(recoveryX.Samples))
	for i, s := range recoveryX.Samples {
		xs[i] = minutesBetween(center, s.Timestamp)
	}
	slope, intercept := linearFit(xs, recoveryX.Values())

	start := slope*xs[0] + intercept
	end := slope*xs[len(xs)-1] + intercept

	var returnPct *float64
	if peak-start > 0 {
		returnPct = ptr((peak - end) / (peak - start) * 100)
	}

	return models.MetricResult{
		EventID:       event.EventID,
		MetricName:    models.MetricRecoverySlope,
		MetricVersion: RecoverySlopeVersion,
		Window:        models.MetricWindow{Peak: ptr(peakWindow), Recovery: ptr(recoveryWindow)},
		Value:         slope,
		Unit:          series.Unit + " per minute",
		ComputedAt:    c.now(),
		Method: fmt.Sprintf("Least-squares slope of glucose against minutes over recovery window %s; "+
			"negative values mean glucose is falling", recoveryWindow),
		CoverageRatio: (peakX.CoverageRatio + recoveryX.CoverageRatio) / 2,
		QualityFlags:  newFlagSet(peakX.QualityFlags, recoveryX.QualityFlags).sorted(),
		QualitySummary: models.QualitySummary{
			PeakGlucose:                    ptr(peak),
			RecoveryStart:                  ptr(start),
			RecoveryEnd:                    ptr(end),
			ReturnTowardBaselinePercentage: returnPct,
			PeakWindowSamples:              len(peakX.Samples),
			PeakExpectedSamples:            peakX.ExpectedSamples,
			RecoveryWindowSamples:          len(recoveryX.Samples),
			RecoveryExpectedSamples:        recoveryX.ExpectedSamples,
			PeakCoveragePercentage:         percentage(peakX.CoverageRatio),
			RecoveryCoveragePercentage:     percentage(recoveryX.CoverageRatio),
		},
	}, nil
}

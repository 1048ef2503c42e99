package models

import (
	"errors"
	"fmt"
	"time"
)

// Glucose units accepted for a time series.
const (
	UnitMgDL   = "mg/dL"
	UnitMmolL  = "mmol/L"
	UnitMinute = "minutes"
)

// Sample quality flags set upstream by artifact detection.
const (
	SampleFlagArtifact    = "artifact"
	SampleFlagSensorError = "sensor_error"
)

// Sample represents a single CGM reading
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	GlucoseValue float64   `json:"glucose_value"`
	QualityFlags []string  `json:"quality_flags,omitempty"`
}

// HasFlag reports whether the sample carries the given quality flag.
func (s *Sample) HasFlag(flag string) bool {
	for _, f := range s.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// TimeSeries is an ordered CGM series. SamplingIntervalMinutes is the nominal spacing;
// actual spacing may be irregular, which is what coverage accounting measures.
type TimeSeries struct {
	SchemaVersion           string   `json:"schema_version,omitempty"`
	SeriesID                string   `json:"series_id,omitempty"`
	SubjectID               string   `json:"subject_id,omitempty"`
	Unit                    string   `json:"unit"`
	SamplingIntervalMinutes float64  `json:"sampling_interval_minutes"`
	Samples                 []Sample `json:"samples"`
}

// Validate checks the unit, the interval and that timestamps strictly increase.
func (ts *TimeSeries) Validate() error {
	if ts.Unit != UnitMgDL && ts.Unit != UnitMmolL {
		return fmt.Errorf("unit must be %s or %s, got %q", UnitMgDL, UnitMmolL, ts.Unit)
	}
	if ts.SamplingIntervalMinutes <= 0 {
		return errors.New("sampling interval must be positive")
	}
	for i := 1; i < len(ts.Samples); i++ {
		if !ts.Samples[i].Timestamp.After(ts.Samples[i-1].Timestamp) {
			return fmt.Errorf("sample %d: timestamps must be strictly increasing", i)
		}
	}
	return nil
}

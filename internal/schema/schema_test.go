package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/glucoracle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSeries = `{
  "schema_version": "1.0.0",
  "series_id": "series_1",
  "subject_id": "subj_1",
  "unit": "mg/dL",
  "sampling_interval_minutes": 5,
  "samples": [
    {"timestamp": "2024-01-01T08:00:00Z", "glucose_value": 95},
    {"timestamp": "2024-01-01T09:05:00+01:00", "glucose_value": 98, "quality_flags": ["artifact"]}
  ]
}`

const validEvents = `{
  "subject_id": "subj_1",
  "time_zone": "Europe/Berlin",
  "events": [
    {
      "event_id": "evt_1",
      "event_type": "meal",
      "start_time": "2024-01-01T08:00:00Z",
      "label": "oatmeal",
      "notes": "Context tags: breakfast",
      "exposure_components": [{"name": "carbohydrate", "value": 45, "unit": "g"}],
      "annotation_quality": 0.8,
      "source": "manual"
    }
  ]
}`

const validQuestion = `{
  "question_id": "q_1",
  "subject_id": "subj_1",
  "time_zone": "Europe/Berlin",
  "exposure": {"event_type": "meal", "selector": {"component": "label", "operator": "=", "value": "food_x"}},
  "comparison": {"event_type": "meal", "selector": {"component": "carbohydrate", "operator": "between", "value": [20, 40], "unit": "g"}},
  "outcome": {"metric_name": "iAUC", "window": {"relative_to": "event_start", "start_offset_minutes": 0, "end_offset_minutes": 180}},
  "condition": [{"name": "time_of_day", "operator": "between", "value": ["06:00", "10:00"]}],
  "time_span": {"start_time": "2024-01-01T00:00:00Z", "end_time": "2024-02-01T00:00:00Z"}
}`

const validMetrics = `{
  "schema_version": "1.0.0",
  "metric_set_id": "set_1",
  "subject_id": "subj_1",
  "generated_at": "2024-01-02T00:00:00Z",
  "metrics": [
    {
      "event_id": "evt_1",
      "metric_name": "iAUC",
      "metric_version": "1.0.0",
      "window": {
        "baseline_window": {"relative_to": "event_start", "start_offset_minutes": -30, "end_offset_minutes": 0},
        "auc_window": {"relative_to": "event_start", "start_offset_minutes": 0, "end_offset_minutes": 180}
      },
      "value": 1234.5,
      "unit": "mg/dL * minutes",
      "coverage_ratio": 0.9,
      "quality_flags": ["missing_data"]
    }
  ],
  "warnings": {"evt_2": "recovery_slope: need at least 2 samples"}
}`

func TestDecodeTimeSeries(t *testing.T) {
	series, err := DecodeTimeSeries([]byte(validSeries))
	require.NoError(t, err)

	assert.Equal(t, models.UnitMgDL, series.Unit)
	require.Len(t, series.Samples, 2)
	assert.True(t, series.Samples[1].Timestamp.Equal(time.Date(2024, 1, 1, 8, 5, 0, 0, time.UTC)))
	assert.True(t, series.Samples[1].HasFlag(models.SampleFlagArtifact))
}

func TestDecodeEvents(t *testing.T) {
	doc, err := DecodeEvents([]byte(validEvents))
	require.NoError(t, err)

	require.Len(t, doc.Events, 1)
	assert.Equal(t, []string{"breakfast"}, doc.Events[0].ContextTags())
	component, ok := doc.Events[0].ExposureComponent("carbohydrate")
	require.True(t, ok)
	assert.Equal(t, 45.0, component.Value)
}

func TestDecodeQuestion(t *testing.T) {
	q, err := DecodeQuestion([]byte(validQuestion))
	require.NoError(t, err)

	assert.Equal(t, "q_1", q.ID())
	assert.Equal(t, models.ValueText, q.Exposure.Selector.Value.Kind)
	assert.Equal(t, models.ValueList, q.Comparison.Selector.Value.Kind)
	require.NotNil(t, q.Outcome.Window)
	assert.True(t, q.Outcome.Window.Equal(models.ResponseWindow()))
	require.Len(t, q.Condition, 1)
	require.NotNil(t, q.TimeSpan)
}

func TestDecodeMetrics(t *testing.T) {
	c, err := DecodeMetrics([]byte(validMetrics))
	require.NoError(t, err)

	require.Len(t, c.Metrics, 1)
	primary, ok := c.Metrics[0].Window.Primary()
	require.True(t, ok)
	assert.True(t, primary.Equal(models.ResponseWindow()))
	assert.Equal(t, "recovery_slope: need at least 2 samples", c.Warnings["evt_2"])
}

func TestDecodeRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		data   string
	}{
		{
			name:   "not JSON",
			decode: func(b []byte) error { _, err := DecodeTimeSeries(b); return err },
			data:   `{"unit":`,
		},
		{
			name:   "unknown unit",
			decode: func(b []byte) error { _, err := DecodeTimeSeries(b); return err },
			data:   `{"unit": "mg", "sampling_interval_minutes": 5, "samples": []}`,
		},
		{
			name:   "zero interval",
			decode: func(b []byte) error { _, err := DecodeTimeSeries(b); return err },
			data:   `{"unit": "mg/dL", "sampling_interval_minutes": 0, "samples": []}`,
		},
		{
			name:   "unparsable timestamp",
			decode: func(b []byte) error { _, err := DecodeTimeSeries(b); return err },
			data:   `{"unit": "mg/dL", "sampling_interval_minutes": 5, "samples": [{"timestamp": "yesterday", "glucose_value": 90}]}`,
		},
		{
			name:   "out of order samples",
			decode: func(b []byte) error { _, err := DecodeTimeSeries(b); return err },
			data: `{"unit": "mg/dL", "sampling_interval_minutes": 5, "samples": [
				{"timestamp": "2024-01-01T08:05:00Z", "glucose_value": 90},
				{"timestamp": "2024-01-01T08:00:00Z", "glucose_value": 91}]}`,
		},
		{
			name:   "event without type",
			decode: func(b []byte) error { _, err := DecodeEvents(b); return err },
			data:   `{"events": [{"event_id": "evt_1", "start_time": "2024-01-01T08:00:00Z"}]}`,
		},
		{
			name:   "duplicate event IDs",
			decode: func(b []byte) error { _, err := DecodeEvents(b); return err },
			data: `{"events": [
				{"event_id": "evt_1", "event_type": "meal", "start_time": "2024-01-01T08:00:00Z"},
				{"event_id": "evt_1", "event_type": "meal", "start_time": "2024-01-01T09:00:00Z"}]}`,
		},
		{
			name:   "boolean selector value",
			decode: func(b []byte) error { _, err := DecodeQuestion(b); return err },
			data: `{"exposure": {"event_type": "meal", "selector": {"component": "label", "operator": "=", "value": true}},
				"comparison": {"event_type": "meal"}, "outcome": {"metric_name": "iAUC"}}`,
		},
		{
			name:   "question without outcome",
			decode: func(b []byte) error { _, err := DecodeQuestion(b); return err },
			data:   `{"exposure": {"event_type": "meal"}, "comparison": {"event_type": "meal"}}`,
		},
		{
			name:   "coverage above one",
			decode: func(b []byte) error { _, err := DecodeMetrics(b); return err },
			data:   `{"metrics": [{"event_id": "e", "metric_name": "iAUC", "value": 1, "window": {}, "coverage_ratio": 1.5}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.decode([]byte(tt.data)))
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(validEvents), 0o644))

	doc, err := ReadFile(path, DecodeEvents)
	require.NoError(t, err)
	assert.Equal(t, "subj_1", doc.SubjectID)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"), DecodeEvents)
	assert.Error(t, err)
}

func TestValidateUnknownDocument(t *testing.T) {
	assert.Error(t, Validate(Document("report"), []byte(`{}`)))
}

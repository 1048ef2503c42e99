package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RelativeToEventStart anchors a window to the event's start time.
const RelativeToEventStart = "event_start"

// WindowSpec is an offset window around an event anchor, in minutes.
// Offsets may be negative for pre-event windows. Two specs are equal only when
// all three fields match exactly.
type WindowSpec struct {
	RelativeTo         string  `json:"relative_to"`
	StartOffsetMinutes float64 `json:"start_offset_minutes"`
	EndOffsetMinutes   float64 `json:"end_offset_minutes"`
}

// NewWindow returns an event-start anchored window.
func NewWindow(startOffset, endOffset float64) WindowSpec {
	return WindowSpec{
		RelativeTo:         RelativeToEventStart,
		StartOffsetMinutes: startOffset,
		EndOffsetMinutes:   endOffset,
	}
}

// BaselineWindow is the default pre-event window [-30, 0].
func BaselineWindow() WindowSpec { return NewWindow(-30, 0) }

// ResponseWindow is the default peak and AUC window [0, 180].
func ResponseWindow() WindowSpec { return NewWindow(0, 180) }

// RecoveryWindow is the default recovery window [120, 240].
func RecoveryWindow() WindowSpec { return NewWindow(120, 240) }

// Equal reports exact equality, no tolerance.
func (w WindowSpec) Equal(other WindowSpec) bool {
	return w.RelativeTo == other.RelativeTo &&
		w.StartOffsetMinutes == other.StartOffsetMinutes &&
		w.EndOffsetMinutes == other.EndOffsetMinutes
}

// DurationMinutes is end minus start offset.
func (w WindowSpec) DurationMinutes() float64 {
	return w.EndOffsetMinutes - w.StartOffsetMinutes
}

func (w WindowSpec) String() string {
	return fmt.Sprintf("[%g, %g]", w.StartOffsetMinutes, w.EndOffsetMinutes)
}

// MetricWindow is either a single window or a named pair of windows used by
// metrics that combine two extractions.
type MetricWindow struct {
	Single   *WindowSpec
	Baseline *WindowSpec
	Peak     *WindowSpec
	AUC      *WindowSpec
	Recovery *WindowSpec
}

type metricWindowPair struct {
	Baseline *WindowSpec `json:"baseline_window,omitempty"`
	Peak     *WindowSpec `json:"peak_window,omitempty"`
	AUC      *WindowSpec `json:"auc_window,omitempty"`
	Recovery *WindowSpec `json:"recovery_window,omitempty"`
}

// SingleWindow wraps one WindowSpec.
func SingleWindow(w WindowSpec) MetricWindow {
	return MetricWindow{Single: &w}
}

// Primary returns the window the metric value is measured over.
func (m MetricWindow) Primary() (WindowSpec, bool) {
	for _, w := range []*WindowSpec{m.Single, m.AUC, m.Recovery, m.Peak, m.Baseline} {
		if w != nil {
			return *w, true
		}
	}
	return WindowSpec{}, false
}

// MarshalJSON writes a single window as the WindowSpec object itself and a pair as
// an object keyed by role.
func (m MetricWindow) MarshalJSON() ([]byte, error) {
	if m.Single != nil {
		return json.Marshal(m.Single)
	}
	return json.Marshal(metricWindowPair{
		Baseline: m.Baseline,
		Peak:     m.Peak,
		AUC:      m.AUC,
		Recovery: m.Recovery,
	})
}

// UnmarshalJSON accepts either form written by MarshalJSON.
func (m *MetricWindow) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = MetricWindow{}
		return nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("metric window: %w", err)
	}
	if _, single := probe["relative_to"]; single {
		var w WindowSpec
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("metric window: %w", err)
		}
		*m = MetricWindow{Single: &w}
		return nil
	}
	var pair metricWindowPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("metric window: %w", err)
	}
	*m = MetricWindow{
		Baseline: pair.Baseline,
		Peak:     pair.Peak,
		AUC:      pair.AUC,
		Recovery: pair.Recovery,
	}
	return nil
}

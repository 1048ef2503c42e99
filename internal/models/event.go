// Package models defines the core domain entities for the glucoracle application.
// These models represent glucose time series, annotated exposure events, windowed
// metric results, causal questions and the answerability verdicts derived from them.
// All input models include built-in validation to catch malformed documents at the
// boundary instead of deep inside the metric and evaluation code.
//
// Terminology:
//   - Event: a subject-annotated exposure (meal, intervention). Events are claims,
//     not ground truth; nothing in this module corrects them.
//   - Metric: a windowed statistic computed over the glucose series around an event.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// contextTagsMarker introduces the structured tag list embedded in free-text notes.
const contextTagsMarker = "Context tags:"

// ExposureComponent is one quantified part of an exposure, e.g. carbohydrate 45 g.
type ExposureComponent struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Event represents a single annotated exposure event.
// EndTime is optional; consumers that need an interval fall back to a default duration.
type Event struct {
	EventID            string              `json:"event_id"`
	EventType          string              `json:"event_type"`
	StartTime          time.Time           `json:"start_time"`
	EndTime            *time.Time          `json:"end_time,omitempty"`
	DurationMinutes    *float64            `json:"duration_minutes,omitempty"`
	Label              string              `json:"label,omitempty"`
	ExposureComponents []ExposureComponent `json:"exposure_components,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	AnnotationQuality  float64             `json:"annotation_quality"`
	Source             string              `json:"source"`
}

// Validate checks that all event fields are valid
func (e *Event) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("event ID must not be empty")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return errors.New("event type must not be empty")
	}
	if e.StartTime.IsZero() {
		return errors.New("start time must be set")
	}
	if e.EndTime != nil && !e.EndTime.After(e.StartTime) {
		return errors.New("end time must be after start time")
	}
	if e.AnnotationQuality < 0.0 || e.AnnotationQuality > 1.0 {
		return errors.New("annotation quality must be between 0.0 and 1.0")
	}
	for _, component := range e.ExposureComponents {
		if strings.TrimSpace(component.Name) == "" {
			return errors.New("exposure component name must not be empty")
		}
	}
	return nil
}

// Interval returns the event's start and end. When no end time was annotated the
// end is start + defaultDuration.
func (e *Event) Interval(defaultDuration time.Duration) (time.Time, time.Time) {
	if e.EndTime != nil {
		return e.StartTime, *e.EndTime
	}
	return e.StartTime, e.StartTime.Add(defaultDuration)
}

// ContextTags parses the tags listed after the "Context tags:" marker in the notes.
// Tags are trimmed and lower-cased; empty entries are dropped.
func (e *Event) ContextTags() []string {
	_, after, found := strings.Cut(e.Notes, contextTagsMarker)
	if !found {
		return nil
	}
	var tags []string
	for _, raw := range strings.Split(after, ",") {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ExposureComponent looks up a component by exact name.
func (e *Event) ExposureComponent(name string) (ExposureComponent, bool) {
	for _, component := range e.ExposureComponents {
		if component.Name == name {
			return component, true
		}
	}
	return ExposureComponent{}, false
}

// EventsDocument is the events collection for one subject.
type EventsDocument struct {
	SchemaVersion string  `json:"schema_version,omitempty"`
	SubjectID     string  `json:"subject_id"`
	TimeZone      string  `json:"time_zone"`
	Events        []Event `json:"events"`
}

// Validate checks every event and rejects duplicate event IDs.
func (d *EventsDocument) Validate() error {
	seen := make(map[string]struct{}, len(d.Events))
	for i := range d.Events {
		event := &d.Events[i]
		if err := event.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if _, dup := seen[event.EventID]; dup {
			return fmt.Errorf("duplicate event ID: %s", event.EventID)
		}
		seen[event.EventID] = struct{}{}
	}
	return nil
}

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Selector is a declarative predicate over one event component.
type Selector struct {
	Component string `json:"component"`
	Operator  string `json:"operator"`
	Value     Value  `json:"value"`
	Unit      string `json:"unit,omitempty"`
}

// Condition is a global predicate every matched event must satisfy.
type Condition struct {
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Value    Value  `json:"value"`
	Unit     string `json:"unit,omitempty"`
}

// EventDefinition selects the events of one comparison arm.
type EventDefinition struct {
	EventType string   `json:"event_type"`
	Selector  Selector `json:"selector"`
}

// Outcome names the metric and window a question is measured with.
type Outcome struct {
	MetricName string      `json:"metric_name"`
	Window     *WindowSpec `json:"window,omitempty"`
	Unit       string      `json:"unit,omitempty"`
}

// TimeSpan bounds event start times, inclusive on both ends.
type TimeSpan struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Contains reports whether t lies within the span, inclusive.
func (s TimeSpan) Contains(t time.Time) bool {
	return !t.Before(s.StartTime) && !t.After(s.EndTime)
}

// Question asks whether exposure and comparison events differ on an outcome.
type Question struct {
	SchemaVersion string          `json:"schema_version,omitempty"`
	QuestionID    string          `json:"question_id,omitempty"`
	SubjectID     string          `json:"subject_id"`
	TimeZone      string          `json:"time_zone"`
	Type          string          `json:"type,omitempty"`
	Exposure      EventDefinition `json:"exposure"`
	Comparison    EventDefinition `json:"comparison"`
	Outcome       Outcome         `json:"outcome"`
	Condition     []Condition     `json:"condition,omitempty"`
	TimeSpan      *TimeSpan       `json:"time_span,omitempty"`
	Assumptions   []string        `json:"assumptions,omitempty"`
}

// Validate checks the fields the evaluator relies on.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Outcome.MetricName) == "" {
		return errors.New("outcome metric name must not be empty")
	}
	if strings.TrimSpace(q.Exposure.EventType) == "" {
		return errors.New("exposure event type must not be empty")
	}
	if strings.TrimSpace(q.Comparison.EventType) == "" {
		return errors.New("comparison event type must not be empty")
	}
	if q.TimeSpan != nil && q.TimeSpan.EndTime.Before(q.TimeSpan.StartTime) {
		return fmt.Errorf("time span end %s is before start %s",
			q.TimeSpan.EndTime.Format(time.RFC3339), q.TimeSpan.StartTime.Format(time.RFC3339))
	}
	return nil
}

// ID returns the question ID or "unknown" when none was given.
func (q *Question) ID() string {
	if q.QuestionID == "" {
		return "unknown"
	}
	return q.QuestionID
}

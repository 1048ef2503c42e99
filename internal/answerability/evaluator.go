// Package answerability decides whether a causal question can be answered with
// the events and metrics currently available.
//
// Evaluation is a single pass: filter events to the question's time span, match
// both comparison arms, detect overlap between the arms and temporal confounding
// across all events, then classify each matched event against the outcome
// metric. Every problem found becomes a Reason; a question is answerable when no
// reason is blocking. Evaluate never fails.
package answerability

import (
	"fmt"
	"sort"
	"time"

	"github.com/rewired-gh/glucoracle/internal/digest"
	"github.com/rewired-gh/glucoracle/internal/logger"
	"github.com/rewired-gh/glucoracle/internal/models"
	"github.com/rewired-gh/glucoracle/internal/selector"
)

// EvaluationVersion is stamped on every result.
const EvaluationVersion = "1.0.0"

// Options are the evaluator thresholds.
type Options struct {
	MinEventsPerGroup           int
	MinMetricCoverage           float64
	MinIsolationMinutes         int
	DefaultEventDurationMinutes int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinEventsPerGroup:           2,
		MinMetricCoverage:           0.7,
		MinIsolationMinutes:         30,
		DefaultEventDurationMinutes: 30,
	}
}

// Evaluator is immutable after construction and safe for concurrent use.
type Evaluator struct {
	opts Options
}

// New creates an Evaluator.
func New(opts Options) *Evaluator {
	return &Evaluator{opts: opts}
}

// Evaluate produces the verdict for one question. metrics may be nil, in which
// case every matched event is missing its metric. A nil question or events
// document is treated as empty.
func (e *Evaluator) Evaluate(q *models.Question, events *models.EventsDocument, metrics *models.MetricsCollection) models.AnswerabilityResult {
	if q == nil {
		q = &models.Question{}
	}
	if events == nil {
		events = &models.EventsDocument{}
	}
	if metrics == nil {
		metrics = &models.MetricsCollection{}
	}
	metricName := q.Outcome.MetricName

	var reasons []models.Reason
	reasons = append(reasons, e.consistencyReasons(q, events, metrics)...)
	if !models.IsKnownMetric(metricName) {
		reasons = append(reasons, models.Reason{
			Code:     "unsupported_metric",
			Detail:   fmt.Sprintf("Outcome metric %q is not one of the computed metrics %v.", metricName, models.MetricNames()),
			Blocking: true,
		})
	}

	inSpan := make([]models.Event, 0, len(events.Events))
	for _, event := range events.Events {
		if q.TimeSpan == nil || q.TimeSpan.Contains(event.StartTime) {
			inSpan = append(inSpan, event)
		}
	}

	matcher := selector.NewMatcher(q.TimeZone)
	exposure := matchGroup(matcher, inSpan, q.Exposure, q.Condition)
	comparison := matchGroup(matcher, inSpan, q.Comparison, q.Condition)

	overlap := intersect(exposure, comparison)
	if len(overlap) > 0 {
		reasons = append(reasons, models.Reason{
			Code:             "ambiguous_event_definition",
			Detail:           "Exposure and comparison definitions match the same events.",
			Blocking:         true,
			AffectedEventIDs: overlap,
		})
	}

	confounded := FindConfounded(inSpan,
		time.Duration(e.opts.MinIsolationMinutes)*time.Minute,
		time.Duration(e.opts.DefaultEventDurationMinutes)*time.Minute)

	index := metrics.ByEvent()
	exposureStats := e.classify(exposure, index, q.Outcome, confounded)
	comparisonStats := e.classify(comparison, index, q.Outcome, confounded)

	reasons = append(reasons, e.groupReasons(models.GroupExposure, exposureStats)...)
	reasons = append(reasons, e.groupReasons(models.GroupComparison, comparisonStats)...)

	var requirements []models.DataRequirement
	requirements = append(requirements, e.groupRequirements(models.GroupExposure, exposureStats, q.Exposure)...)
	requirements = append(requirements, e.groupRequirements(models.GroupComparison, comparisonStats, q.Comparison)...)
	if len(overlap) > 0 {
		requirements = append(requirements, models.DataRequirement{
			Type:     models.RequirementRefineDefinitions,
			Detail:   "Refine the exposure and comparison selectors so no event matches both.",
			EventIDs: overlap,
		})
	}

	answerable := true
	for _, reason := range reasons {
		if reason.Blocking {
			answerable = false
			break
		}
	}

	if reasons == nil {
		reasons = []models.Reason{}
	}
	if requirements == nil {
		requirements = []models.DataRequirement{}
	}

	result := models.AnswerabilityResult{
		EvaluationVersion: EvaluationVersion,
		QuestionID:        q.ID(),
		SubjectID:         q.SubjectID,
		Answerable:        answerable,
		Summary: models.EvaluationSummary{
			QuestionID:          q.ID(),
			SubjectID:           q.SubjectID,
			MetricName:          metricName,
			MetricWindow:        q.Outcome.Window,
			TimeSpan:            q.TimeSpan,
			MinEventsPerGroup:   e.opts.MinEventsPerGroup,
			MinMetricCoverage:   e.opts.MinMetricCoverage,
			MinIsolationMinutes: e.opts.MinIsolationMinutes,
			EventsConsidered:    len(events.Events),
			EventsInTimeSpan:    len(inSpan),
			MetricsConsidered:   len(metrics.Metrics),
		},
		Reasons:          reasons,
		DataRequirements: requirements,
		MatchStats: models.MatchStats{
			Exposure:           exposureStats,
			Comparison:         comparisonStats,
			ConfoundedEventIDs: confounded,
			OverlapEventIDs:    nonNil(overlap),
		},
	}

	sum, err := digest.Digest(result)
	if err != nil {
		logger.Error("Failed to digest answerability result for question %s: %v", q.ID(), err)
	} else {
		result.ResultDigest = sum
	}

	logger.Debug("Question %s: answerable=%t, %d reasons, %d requirements",
		q.ID(), answerable, len(reasons), len(requirements))
	return result
}

// consistencyReasons reports subject and time zone disagreements between the
// question and its inputs. Empty identifiers are not compared.
func (e *Evaluator) consistencyReasons(q *models.Question, events *models.EventsDocument, metrics *models.MetricsCollection) []models.Reason {
	var reasons []models.Reason
	mismatch := func(code, field, source, got, want string) {
		if got == "" || want == "" || got == want {
			return
		}
		reasons = append(reasons, models.Reason{
			Code:     code,
			Detail:   fmt.Sprintf("%s %s %s does not match question %s %s.", source, field, got, field, want),
			Blocking: true,
		})
	}
	mismatch("subject_id_mismatch", "subject_id", "Events", events.SubjectID, q.SubjectID)
	mismatch("subject_id_mismatch", "subject_id", "Metrics", metrics.SubjectID, q.SubjectID)
	mismatch("time_zone_mismatch", "time_zone", "Events", events.TimeZone, q.TimeZone)
	mismatch("time_zone_mismatch", "time_zone", "Metrics", metrics.TimeZone, q.TimeZone)
	return reasons
}

func matchGroup(m *selector.Matcher, events []models.Event, def models.EventDefinition, conds []models.Condition) []*models.Event {
	var matched []*models.Event
	for i := range events {
		event := &events[i]
		if m.MatchDefinition(event, def) && m.MatchConditions(event, conds) {
			matched = append(matched, event)
		}
	}
	return matched
}

// classify sorts each matched event of one arm into exactly one bucket:
// confounded, missing metric, window mismatch, low coverage or usable.
func (e *Evaluator) classify(events []*models.Event, index map[string][]models.MetricResult, outcome models.Outcome, confounded []string) models.GroupStats {
	isConfounded := make(map[string]bool, len(confounded))
	for _, id := range confounded {
		isConfounded[id] = true
	}

	stats := models.GroupStats{
		MetricName:               outcome.MetricName,
		MatchedEventIDs:          []string{},
		UsableEventIDs:           []string{},
		ConfoundedEventIDs:       []string{},
		MissingMetricEventIDs:    []string{},
		LowQualityMetricEventIDs: []string{},
		WindowMismatchEventIDs:   []string{},
	}

	for _, event := range events {
		id := event.EventID
		stats.MatchedEventIDs = append(stats.MatchedEventIDs, id)
		if isConfounded[id] {
			stats.ConfoundedEventIDs = append(stats.ConfoundedEventIDs, id)
			continue
		}

		var candidates []models.MetricResult
		for _, metric := range index[id] {
			if metric.MetricName == outcome.MetricName {
				candidates = append(candidates, metric)
			}
		}
		if len(candidates) == 0 {
			stats.MissingMetricEventIDs = append(stats.MissingMetricEventIDs, id)
			continue
		}

		metric, ok := selectMetric(candidates, outcome.Window)
		if !ok {
			stats.WindowMismatchEventIDs = append(stats.WindowMismatchEventIDs, id)
			continue
		}
		if metric.CoverageRatio < e.opts.MinMetricCoverage {
			stats.LowQualityMetricEventIDs = append(stats.LowQualityMetricEventIDs, id)
			continue
		}
		stats.UsableEventIDs = append(stats.UsableEventIDs, id)
	}
	return stats
}

// selectMetric picks the first metric when no window was asked for, otherwise the
// first metric whose primary window equals it exactly.
func selectMetric(metrics []models.MetricResult, window *models.WindowSpec) (models.MetricResult, bool) {
	if window == nil {
		return metrics[0], true
	}
	for _, metric := range metrics {
		if primary, ok := metric.Window.Primary(); ok && primary.Equal(*window) {
			return metric, true
		}
	}
	return models.MetricResult{}, false
}

func intersect(a, b []*models.Event) []string {
	inB := make(map[string]bool, len(b))
	for _, event := range b {
		inB[event.EventID] = true
	}
	var ids []string
	for _, event := range a {
		if inB[event.EventID] {
			ids = append(ids, event.EventID)
		}
	}
	sort.Strings(ids)
	return ids
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

package answerability

import (
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/glucoracle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

func meal(id, label string, startMinute int) models.Event {
	return models.Event{
		EventID:           id,
		EventType:         "meal",
		StartTime:         day.Add(time.Duration(startMinute) * time.Minute),
		Label:             label,
		AnnotationQuality: 0.9,
		Source:            "manual",
	}
}

func iauc(eventID string, coverage float64) models.MetricResult {
	baseline, auc := models.BaselineWindow(), models.ResponseWindow()
	return models.MetricResult{
		EventID:       eventID,
		MetricName:    models.MetricIAUC,
		MetricVersion: "1.0.0",
		Window:        models.MetricWindow{Baseline: &baseline, AUC: &auc},
		Value:         1200,
		Unit:          "mg/dL * minutes",
		CoverageRatio: coverage,
	}
}

func labelIs(label string) models.EventDefinition {
	return models.EventDefinition{
		EventType: "meal",
		Selector:  models.Selector{Component: "label", Operator: "=", Value: models.TextValue(label)},
	}
}

func foodQuestion() *models.Question {
	window := models.ResponseWindow()
	return &models.Question{
		QuestionID: "q_food",
		SubjectID:  "subj_1",
		TimeZone:   "UTC",
		Exposure:   labelIs("food_x"),
		Comparison: labelIs("food_y"),
		Outcome:    models.Outcome{MetricName: models.MetricIAUC, Window: &window},
	}
}

func eventsDoc(events ...models.Event) *models.EventsDocument {
	return &models.EventsDocument{SubjectID: "subj_1", TimeZone: "UTC", Events: events}
}

func metricsFor(events *models.EventsDocument, coverage float64) *models.MetricsCollection {
	c := &models.MetricsCollection{SubjectID: "subj_1", TimeZone: "UTC"}
	for _, event := range events.Events {
		c.Metrics = append(c.Metrics, iauc(event.EventID, coverage))
	}
	return c
}

// fourMeals are spaced 240 minutes apart.
func fourMeals() *models.EventsDocument {
	return eventsDoc(
		meal("evt_x1", "food_x", 0),
		meal("evt_y1", "food_y", 240),
		meal("evt_x2", "food_x", 480),
		meal("evt_y2", "food_y", 720),
	)
}

func evaluate(q *models.Question, events *models.EventsDocument, metrics *models.MetricsCollection) models.AnswerabilityResult {
	return New(DefaultOptions()).Evaluate(q, events, metrics)
}

func reason(t *testing.T, result models.AnswerabilityResult, code string) models.Reason {
	t.Helper()
	for _, r := range result.Reasons {
		if r.Code == code {
			return r
		}
	}
	require.Failf(t, "reason not found", "no reason %q in %v", code, result.ReasonCodes())
	return models.Reason{}
}

func requirementTypes(result models.AnswerabilityResult) []string {
	types := make([]string, len(result.DataRequirements))
	for i, r := range result.DataRequirements {
		types[i] = r.Type
	}
	return types
}

func TestAnswerableWithTwoUsableEventsPerGroup(t *testing.T) {
	events := fourMeals()
	result := evaluate(foodQuestion(), events, metricsFor(events, 0.9))

	assert.True(t, result.Answerable)
	assert.Empty(t, result.Reasons)
	assert.Empty(t, result.DataRequirements)
	assert.Equal(t, []string{"evt_x1", "evt_x2"}, result.MatchStats.Exposure.UsableEventIDs)
	assert.Equal(t, []string{"evt_y1", "evt_y2"}, result.MatchStats.Comparison.UsableEventIDs)
	assert.Empty(t, result.MatchStats.ConfoundedEventIDs)
	assert.Equal(t, EvaluationVersion, result.EvaluationVersion)
	assert.Equal(t, "q_food", result.QuestionID)
	assert.Equal(t, 4, result.Summary.EventsConsidered)
	assert.Equal(t, 4, result.Summary.MetricsConsidered)
	assert.Len(t, result.ResultDigest, 64)
}

func TestInsufficientRepeats(t *testing.T) {
	events := eventsDoc(meal("evt_x1", "food_x", 0), meal("evt_y1", "food_y", 240))
	result := evaluate(foodQuestion(), events, metricsFor(events, 0.9))

	assert.False(t, result.Answerable)
	assert.Equal(t, []string{"insufficient_repeats_exposure", "insufficient_repeats_comparison"}, result.ReasonCodes())

	r := reason(t, result, "insufficient_repeats_exposure")
	assert.True(t, r.Blocking)
	require.NotNil(t, r.Observed)
	require.NotNil(t, r.Required)
	assert.Equal(t, 1, *r.Observed)
	assert.Equal(t, 2, *r.Required)

	require.Len(t, result.DataRequirements, 2)
	assert.Equal(t, models.RequirementCollectEvents, result.DataRequirements[0].Type)
	assert.Equal(t, models.GroupExposure, result.DataRequirements[0].Group)
	assert.Equal(t, 1, result.DataRequirements[0].NeededCount)
	require.NotNil(t, result.DataRequirements[0].Selector)
	assert.Equal(t, "label", result.DataRequirements[0].Selector.Component)
}

func TestNoMatchingEvents(t *testing.T) {
	events := eventsDoc(meal("evt_y1", "food_y", 0), meal("evt_y2", "food_y", 240))
	result := evaluate(foodQuestion(), events, metricsFor(events, 0.9))

	assert.False(t, result.Answerable)
	assert.Equal(t, []string{"no_matching_exposure_events"}, result.ReasonCodes())
	require.Len(t, result.DataRequirements, 1)
	assert.Equal(t, 2, result.DataRequirements[0].NeededCount)
}

func TestMissingMetric(t *testing.T) {
	events := fourMeals()
	metrics := metricsFor(events, 0.9)
	metrics.Metrics = append(metrics.Metrics[:2], metrics.Metrics[3])

	result := evaluate(foodQuestion(), events, metrics)

	assert.False(t, result.Answerable)
	assert.Equal(t, []string{"missing_metric", "insufficient_repeats_exposure"}, result.ReasonCodes())
	r := reason(t, result, "missing_metric")
	assert.True(t, r.Blocking)
	assert.Equal(t, []string{"evt_x2"}, r.AffectedEventIDs)
	assert.Equal(t, []string{models.RequirementCollectEvents, models.RequirementComputeMetrics}, requirementTypes(result))
}

func TestMissingBaseline(t *testing.T) {
	q := foodQuestion()
	window := models.BaselineWindow()
	q.Outcome = models.Outcome{MetricName: models.MetricBaselineGlucose, Window: &window}

	result := evaluate(q, fourMeals(), nil)

	assert.False(t, result.Answerable)
	assert.Contains(t, result.ReasonCodes(), "missing_baseline")
	assert.NotContains(t, result.ReasonCodes(), "missing_metric")
	assert.Equal(t, 0, result.Summary.MetricsConsidered)
}

func TestConfoundedEventsBlockWhenGroupFallsShort(t *testing.T) {
	events := fourMeals()
	events.Events = append(events.Events, meal("evt_x3", "food_x", 10))
	result := evaluate(foodQuestion(), events, metricsFor(events, 0.9))

	assert.False(t, result.Answerable)
	assert.Equal(t, []string{"evt_x1", "evt_x3"}, result.MatchStats.ConfoundedEventIDs)
	assert.Equal(t, []string{"evt_x2"}, result.MatchStats.Exposure.UsableEventIDs)
	r := reason(t, result, "confounded_context")
	assert.True(t, r.Blocking)
	assert.Equal(t, []string{"evt_x1", "evt_x3"}, r.AffectedEventIDs)
	assert.Contains(t, requirementTypes(result), models.RequirementCollectIsolatedEvents)
}

func TestConfoundingByUnmatchedEventIsAdvisory(t *testing.T) {
	events := fourMeals()
	walk := meal("evt_walk", "", 970)
	walk.EventType = "exercise"
	events.Events = append(events.Events, meal("evt_x3", "food_x", 960), walk)

	result := evaluate(foodQuestion(), events, metricsFor(events, 0.9))

	assert.True(t, result.Answerable)
	r := reason(t, result, "confounded_context")
	assert.False(t, r.Blocking)
	assert.Equal(t, []string{"evt_x3"}, r.AffectedEventIDs)
	assert.Equal(t, []string{"evt_walk", "evt_x3"}, result.MatchStats.ConfoundedEventIDs)
}

func TestOverlappingDefinitionsAreAmbiguous(t *testing.T) {
	q := foodQuestion()
	q.Comparison.Selector = models.Selector{
		Component: "label",
		Operator:  "in",
		Value:     models.ListValue(models.TextValue("food_x"), models.TextValue("food_y")),
	}
	events := fourMeals()

	result := evaluate(q, events, metricsFor(events, 0.9))

	assert.False(t, result.Answerable)
	r := reason(t, result, "ambiguous_event_definition")
	assert.True(t, r.Blocking)
	assert.Equal(t, []string{"evt_x1", "evt_x2"}, r.AffectedEventIDs)
	assert.Equal(t, []string{"evt_x1", "evt_x2"}, result.MatchStats.OverlapEventIDs)

	last := result.DataRequirements[len(result.DataRequirements)-1]
	assert.Equal(t, models.RequirementRefineDefinitions, last.Type)
	assert.Equal(t, []string{"evt_x1", "evt_x2"}, last.EventIDs)
}

func TestWindowMismatch(t *testing.T) {
	q := foodQuestion()
	window := models.NewWindow(0, 120)
	q.Outcome.Window = &window
	events := fourMeals()

	result := evaluate(q, events, metricsFor(events, 0.9))

	assert.False(t, result.Answerable)
	r := reason(t, result, "metric_window_mismatch")
	assert.True(t, r.Blocking)
	assert.Equal(t, []string{"evt_x1", "evt_x2"}, result.MatchStats.Exposure.WindowMismatchEventIDs)
	assert.Contains(t, requirementTypes(result), models.RequirementRecomputeMetrics)
}

func TestQuestionWithoutWindowUsesFirstMetric(t *testing.T) {
	q := foodQuestion()
	q.Outcome.Window = nil
	events := fourMeals()

	result := evaluate(q, events, metricsFor(events, 0.9))
	assert.True(t, result.Answerable)
}

func TestLowCoverage(t *testing.T) {
	events := fourMeals()
	metrics := metricsFor(events, 0.9)
	metrics.Metrics[0].CoverageRatio = 0.5

	result := evaluate(foodQuestion(), events, metrics)

	assert.False(t, result.Answerable)
	r := reason(t, result, "low_metric_coverage")
	assert.True(t, r.Blocking)
	assert.Equal(t, []string{"evt_x1"}, r.AffectedEventIDs)
	assert.Contains(t, requirementTypes(result), models.RequirementImproveCoverage)
}

func TestConsistencyReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(events *models.EventsDocument, metrics *models.MetricsCollection)
		code   string
	}{
		{
			name:   "events subject",
			mutate: func(events *models.EventsDocument, _ *models.MetricsCollection) { events.SubjectID = "subj_2" },
			code:   "subject_id_mismatch",
		},
		{
			name:   "metrics subject",
			mutate: func(_ *models.EventsDocument, metrics *models.MetricsCollection) { metrics.SubjectID = "subj_2" },
			code:   "subject_id_mismatch",
		},
		{
			name:   "events time zone",
			mutate: func(events *models.EventsDocument, _ *models.MetricsCollection) { events.TimeZone = "Europe/Berlin" },
			code:   "time_zone_mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := fourMeals()
			metrics := metricsFor(events, 0.9)
			tt.mutate(events, metrics)

			result := evaluate(foodQuestion(), events, metrics)

			assert.False(t, result.Answerable)
			assert.Equal(t, []string{tt.code}, result.ReasonCodes())
			assert.True(t, result.Reasons[0].Blocking)
			assert.Len(t, result.MatchStats.Exposure.UsableEventIDs, 2)
		})
	}
}

func TestEmptyIdentifiersAreNotCompared(t *testing.T) {
	events := fourMeals()
	events.SubjectID, events.TimeZone = "", ""
	result := evaluate(foodQuestion(), events, metricsFor(events, 0.9))
	assert.True(t, result.Answerable)
}

func TestUnsupportedMetric(t *testing.T) {
	q := foodQuestion()
	q.Outcome.MetricName = "glycemic_load"

	result := evaluate(q, fourMeals(), nil)

	assert.False(t, result.Answerable)
	assert.Equal(t, "unsupported_metric", result.Reasons[0].Code)
	assert.True(t, result.Reasons[0].Blocking)
}

func TestNilInputsAreTreatedAsEmpty(t *testing.T) {
	var result models.AnswerabilityResult
	require.NotPanics(t, func() { result = evaluate(foodQuestion(), nil, nil) })

	assert.False(t, result.Answerable)
	assert.Contains(t, result.ReasonCodes(), "no_matching_exposure_events")
	assert.Contains(t, result.ReasonCodes(), "no_matching_comparison_events")
	assert.Equal(t, 0, result.Summary.EventsConsidered)

	require.NotPanics(t, func() { result = evaluate(nil, fourMeals(), nil) })
	assert.False(t, result.Answerable)
	assert.Contains(t, result.ReasonCodes(), "unsupported_metric")
}

func TestTimeSpanFilter(t *testing.T) {
	q := foodQuestion()
	q.TimeSpan = &models.TimeSpan{StartTime: day, EndTime: day.Add(480 * time.Minute)}
	events := fourMeals()

	result := evaluate(q, events, metricsFor(events, 0.9))

	assert.Equal(t, 3, result.Summary.EventsInTimeSpan)
	assert.Equal(t, []string{"insufficient_repeats_comparison"}, result.ReasonCodes())
}

func TestConditionsApplyToBothGroups(t *testing.T) {
	q := foodQuestion()
	q.Condition = []models.Condition{{
		Name:     "time_of_day",
		Operator: "between",
		Value:    models.ListValue(models.TextValue("06:00"), models.TextValue("12:00")),
	}}
	events := fourMeals()

	result := evaluate(q, events, metricsFor(events, 0.9))

	assert.Equal(t, []string{"evt_x1"}, result.MatchStats.Exposure.MatchedEventIDs)
	assert.Equal(t, []string{"evt_y1"}, result.MatchStats.Comparison.MatchedEventIDs)
	assert.Equal(t, []string{"insufficient_repeats_exposure", "insufficient_repeats_comparison"}, result.ReasonCodes())
}

func TestAddingUsableEventsOnlyRemovesRepeatReasons(t *testing.T) {
	q := foodQuestion()
	all := []models.Event{
		meal("evt_x1", "food_x", 0),
		meal("evt_y1", "food_y", 240),
		meal("evt_x2", "food_x", 480),
		meal("evt_y2", "food_y", 720),
		meal("evt_x3", "food_x", 960),
	}

	var previous []string
	for n := 2; n <= len(all); n++ {
		events := eventsDoc(all[:n]...)
		codes := evaluate(q, events, metricsFor(events, 0.9)).ReasonCodes()
		if previous != nil {
			for _, code := range codes {
				assert.Contains(t, previous, code, "new reason after adding event %d", n)
			}
		}
		previous = codes
	}
	assert.Empty(t, previous)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	events := fourMeals()
	events.Events = append(events.Events, meal("evt_x3", "food_x", 10))
	metrics := metricsFor(events, 0.9)
	evaluator := New(DefaultOptions())

	first := evaluator.Evaluate(foodQuestion(), events, metrics)

	var wg sync.WaitGroup
	results := make([]models.AnswerabilityResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = evaluator.Evaluate(foodQuestion(), events, metrics)
		}()
	}
	wg.Wait()

	for _, result := range results {
		assert.Equal(t, first, result)
	}
}

func TestFindConfounded(t *testing.T) {
	at := func(minute int) time.Time { return day.Add(time.Duration(minute) * time.Minute) }
	withEnd := func(id string, start, end int) models.Event {
		e := meal(id, "", start)
		stop := at(end)
		e.EndTime = &stop
		return e
	}
	iso, dur := 30*time.Minute, 30*time.Minute

	tests := []struct {
		name   string
		events []models.Event
		want   []string
	}{
		{"ten minutes apart", []models.Event{meal("a", "", 0), meal("b", "", 10)}, []string{"a", "b"}},
		{"gap equal to isolation", []models.Event{meal("a", "", 0), meal("b", "", 60)}, []string{"a", "b"}},
		{"gap beyond isolation", []models.Event{meal("a", "", 0), meal("b", "", 61)}, []string{}},
		{"annotated end time", []models.Event{withEnd("a", 0, 120), meal("b", "", 140)}, []string{"a", "b"}},
		{"long event spans later ones", []models.Event{withEnd("a", 0, 600), meal("b", "", 300), meal("c", "", 700)}, []string{"a", "b"}},
		{"input order does not matter", []models.Event{meal("c", "", 500), meal("b", "", 10), meal("a", "", 0)}, []string{"a", "b"}},
		{"single event", []models.Event{meal("a", "", 0)}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindConfounded(tt.events, iso, dur))
		})
	}
}

func TestFindConfoundedIsSymmetric(t *testing.T) {
	for gap := 0; gap <= 120; gap += 5 {
		forward := FindConfounded([]models.Event{meal("a", "", 0), meal("b", "", gap)}, 30*time.Minute, 30*time.Minute)
		backward := FindConfounded([]models.Event{meal("b", "", gap), meal("a", "", 0)}, 30*time.Minute, 30*time.Minute)
		assert.Equal(t, forward, backward, "gap %d", gap)
		assert.True(t, len(forward) == 0 || len(forward) == 2, "gap %d", gap)
	}
}

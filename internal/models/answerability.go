package models

// Group names used in reason codes and data requirements.
const (
	GroupExposure   = "exposure"
	GroupComparison = "comparison"
)

// Reason explains one condition found during evaluation. Blocking reasons make the
// question unanswerable on their own.
type Reason struct {
	Code             string   `json:"code"`
	Detail           string   `json:"detail"`
	Blocking         bool     `json:"blocking"`
	AffectedEventIDs []string `json:"affected_event_ids,omitempty"`
	Observed         *int     `json:"observed,omitempty"`
	Required         *int     `json:"required,omitempty"`
}

// Data requirement types.
const (
	RequirementCollectEvents         = "collect_events"
	RequirementComputeMetrics        = "compute_metrics"
	RequirementImproveCoverage       = "improve_cgm_coverage"
	RequirementRecomputeMetrics      = "recompute_metrics"
	RequirementCollectIsolatedEvents = "collect_isolated_events"
	RequirementRefineDefinitions     = "refine_definitions"
)

// DataRequirement is a concrete remediation step.
type DataRequirement struct {
	Type        string    `json:"type"`
	Group       string    `json:"group,omitempty"`
	NeededCount int       `json:"needed_count,omitempty"`
	Detail      string    `json:"detail"`
	Selector    *Selector `json:"selector,omitempty"`
	EventIDs    []string  `json:"event_ids,omitempty"`
}

// GroupStats records how each matched event of one arm was classified.
type GroupStats struct {
	MetricName               string   `json:"metric_name"`
	MatchedEventIDs          []string `json:"matched_event_ids"`
	UsableEventIDs           []string `json:"usable_event_ids"`
	ConfoundedEventIDs       []string `json:"confounded_event_ids"`
	MissingMetricEventIDs    []string `json:"missing_metric_event_ids"`
	LowQualityMetricEventIDs []string `json:"low_quality_metric_event_ids"`
	WindowMismatchEventIDs   []string `json:"window_mismatch_event_ids"`
}

// MatchStats summarises matching across both arms.
type MatchStats struct {
	Exposure           GroupStats `json:"exposure"`
	Comparison         GroupStats `json:"comparison"`
	ConfoundedEventIDs []string   `json:"confounded_event_ids"`
	OverlapEventIDs    []string   `json:"overlap_event_ids"`
}

// EvaluationSummary echoes the question and the thresholds applied.
type EvaluationSummary struct {
	QuestionID          string      `json:"question_id"`
	SubjectID           string      `json:"subject_id"`
	MetricName          string      `json:"metric_name"`
	MetricWindow        *WindowSpec `json:"metric_window,omitempty"`
	TimeSpan            *TimeSpan   `json:"time_span,omitempty"`
	MinEventsPerGroup   int         `json:"min_events_per_group"`
	MinMetricCoverage   float64     `json:"min_metric_coverage"`
	MinIsolationMinutes int         `json:"min_isolation_minutes"`
	EventsConsidered    int         `json:"events_considered"`
	EventsInTimeSpan    int         `json:"events_in_time_span"`
	MetricsConsidered   int         `json:"metrics_considered"`
}

// AnswerabilityResult is the full verdict for one question, events and metrics triple.
type AnswerabilityResult struct {
	EvaluationVersion string            `json:"evaluation_version"`
	QuestionID        string            `json:"question_id"`
	SubjectID         string            `json:"subject_id"`
	Answerable        bool              `json:"answerable"`
	Summary           EvaluationSummary `json:"summary"`
	Reasons           []Reason          `json:"reasons"`
	DataRequirements  []DataRequirement `json:"data_requirements"`
	MatchStats        MatchStats        `json:"match_stats"`
	ResultDigest      string            `json:"result_digest,omitempty"`
}

// BlockingReasons returns the subset of reasons that block an answer.
func (r AnswerabilityResult) BlockingReasons() []Reason {
	var blocking []Reason
	for _, reason := range r.Reasons {
		if reason.Blocking {
			blocking = append(blocking, reason)
		}
	}
	return blocking
}

// ReasonCodes lists reason codes in order.
func (r AnswerabilityResult) ReasonCodes() []string {
	codes := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		codes = append(codes, reason.Code)
	}
	return codes
}

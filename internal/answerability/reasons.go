package answerability

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/glucoracle/internal/models"
)

// groupReasons explains the classification of one arm. "No matches" and
// "insufficient repeats" always block; the other reasons block only when the arm
// is left with fewer usable events than required.
func (e *Evaluator) groupReasons(group string, stats models.GroupStats) []models.Reason {
	if len(stats.MatchedEventIDs) == 0 {
		return []models.Reason{{
			Code:     "no_matching_" + group + "_events",
			Detail:   fmt.Sprintf("No events match the %s definition within the time span.", group),
			Blocking: true,
		}}
	}

	short := len(stats.UsableEventIDs) < e.opts.MinEventsPerGroup
	title := strings.ToUpper(group[:1]) + group[1:]

	var reasons []models.Reason
	if len(stats.ConfoundedEventIDs) > 0 {
		reasons = append(reasons, models.Reason{
			Code: "confounded_context",
			Detail: fmt.Sprintf("%s events occur within %d minutes of other events.",
				title, e.opts.MinIsolationMinutes),
			Blocking:         short,
			AffectedEventIDs: stats.ConfoundedEventIDs,
		})
	}
	if len(stats.WindowMismatchEventIDs) > 0 {
		reasons = append(reasons, models.Reason{
			Code:             "metric_window_mismatch",
			Detail:           fmt.Sprintf("Metrics for %s events were computed over a different window.", group),
			Blocking:         short,
			AffectedEventIDs: stats.WindowMismatchEventIDs,
		})
	}
	if len(stats.MissingMetricEventIDs) > 0 {
		code := "missing_metric"
		if stats.MetricName == models.MetricBaselineGlucose {
			code = "missing_baseline"
		}
		reasons = append(reasons, models.Reason{
			Code:             code,
			Detail:           fmt.Sprintf("No %s metric for %s events.", stats.MetricName, group),
			Blocking:         short,
			AffectedEventIDs: stats.MissingMetricEventIDs,
		})
	}
	if len(stats.LowQualityMetricEventIDs) > 0 {
		reasons = append(reasons, models.Reason{
			Code: "low_metric_coverage",
			Detail: fmt.Sprintf("Metric coverage for %s events is below %.0f%%.",
				group, e.opts.MinMetricCoverage*100),
			Blocking:         short,
			AffectedEventIDs: stats.LowQualityMetricEventIDs,
		})
	}
	if short {
		observed, required := len(stats.UsableEventIDs), e.opts.MinEventsPerGroup
		reasons = append(reasons, models.Reason{
			Code: "insufficient_repeats_" + group,
			Detail: fmt.Sprintf("Need at least %d usable %s events, found %d.",
				required, group, observed),
			Blocking: true,
			Observed: &observed,
			Required: &required,
		})
	}
	return reasons
}

// groupRequirements lists the remediation steps for one arm.
func (e *Evaluator) groupRequirements(group string, stats models.GroupStats, def models.EventDefinition) []models.DataRequirement {
	sel := def.Selector

	if len(stats.MatchedEventIDs) == 0 {
		return []models.DataRequirement{{
			Type:        models.RequirementCollectEvents,
			Group:       group,
			NeededCount: e.opts.MinEventsPerGroup,
			Detail:      fmt.Sprintf("Record events that match the %s definition.", group),
			Selector:    &sel,
		}}
	}

	var requirements []models.DataRequirement
	if missing := e.opts.MinEventsPerGroup - len(stats.UsableEventIDs); missing > 0 {
		requirements = append(requirements, models.DataRequirement{
			Type:        models.RequirementCollectEvents,
			Group:       group,
			NeededCount: missing,
			Detail:      fmt.Sprintf("Collect at least %d more usable %s events.", missing, group),
			Selector:    &sel,
		})
	}
	if len(stats.MissingMetricEventIDs) > 0 {
		requirements = append(requirements, models.DataRequirement{
			Type:     models.RequirementComputeMetrics,
			Group:    group,
			Detail:   "Compute the outcome metric for these events, or improve CGM coverage so it can be computed.",
			EventIDs: stats.MissingMetricEventIDs,
		})
	}
	if len(stats.LowQualityMetricEventIDs) > 0 {
		requirements = append(requirements, models.DataRequirement{
			Type:     models.RequirementImproveCoverage,
			Group:    group,
			Detail:   "Increase CGM coverage in the outcome window for these events.",
			EventIDs: stats.LowQualityMetricEventIDs,
		})
	}
	if len(stats.WindowMismatchEventIDs) > 0 {
		requirements = append(requirements, models.DataRequirement{
			Type:     models.RequirementRecomputeMetrics,
			Group:    group,
			Detail:   "Recompute metrics over the question's outcome window.",
			EventIDs: stats.WindowMismatchEventIDs,
		})
	}
	if len(stats.ConfoundedEventIDs) > 0 {
		requirements = append(requirements, models.DataRequirement{
			Type:  models.RequirementCollectIsolatedEvents,
			Group: group,
			Detail: fmt.Sprintf("Add %s events separated from other events by at least %d minutes.",
				group, e.opts.MinIsolationMinutes),
			EventIDs: stats.ConfoundedEventIDs,
		})
	}
	return requirements
}

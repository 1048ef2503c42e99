package answerability

import (
	"sort"
	"time"

	"github.com/rewired-gh/glucoracle/internal/models"
)

type span struct {
	id         string
	start, end time.Time
}

// FindConfounded returns the sorted IDs of events that have another event within
// isolation of their interval. Events without an end time last defaultDuration.
//
// Event A is confounded by B when B.start <= A.end+isolation and
// B.end >= A.start-isolation. The test is symmetric, so each qualifying pair marks
// both events.
func FindConfounded(events []models.Event, isolation, defaultDuration time.Duration) []string {
	spans := make([]span, len(events))
	for i := range events {
		start, end := events[i].Interval(defaultDuration)
		spans[i] = span{id: events[i].EventID, start: start, end: end}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].start.Before(spans[j].start)
	})

	confounded := make(map[string]struct{})
	for i := range spans {
		a := spans[i]
		reach := a.end.Add(isolation)
		for j := i + 1; j < len(spans); j++ {
			b := spans[j]
			if b.start.After(reach) {
				break
			}
			if b.end.Before(a.start.Add(-isolation)) {
				continue
			}
			confounded[a.id] = struct{}{}
			confounded[b.id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(confounded))
	for id := range confounded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

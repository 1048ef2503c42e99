package metrics

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is matched by every InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports a window with too few samples for a metric.
// It is an expected outcome for sparse events, not a fault.
type InsufficientDataError struct {
	Metric  string
	EventID string
	Reason  string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s for event %s: %s", e.Metric, e.EventID, e.Reason)
}

// Is lets errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

func insufficient(metric, eventID, format string, args ...any) error {
	return &InsufficientDataError{Metric: metric, EventID: eventID, Reason: fmt.Sprintf(format, args...)}
}

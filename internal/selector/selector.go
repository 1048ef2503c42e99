// Package selector matches annotated events against declarative predicates.
//
// A predicate names a component (label, source, context tags, an exposure
// component such as carbohydrate, time of day, ...), an operator and a value.
// Components form a closed set resolved per kind; unknown operators and
// unresolvable components never match. Matching never returns an error: a
// predicate that cannot be evaluated simply excludes the event.
package selector

import (
	"cmp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rewired-gh/glucoracle/internal/logger"
	"github.com/rewired-gh/glucoracle/internal/models"
)

// Operator is a predicate comparison operator.
type Operator string

const (
	OpEqual        Operator = "="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpBetween      Operator = "between"
	OpIn           Operator = "in"
	OpExists       Operator = "exists"
)

// Matcher evaluates selectors and conditions. It is immutable and safe for
// concurrent use.
type Matcher struct {
	location *time.Location
}

// NewMatcher creates a Matcher that reads time of day in timeZone. An empty or
// unknown zone falls back to each event's own UTC offset.
func NewMatcher(timeZone string) *Matcher {
	if timeZone == "" {
		return &Matcher{}
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		logger.Debug("Unknown time zone %q, using event offsets for time of day: %v", timeZone, err)
		return &Matcher{}
	}
	return &Matcher{location: loc}
}

// MatchDefinition reports whether the event has the definition's event type and
// satisfies its selector.
func (m *Matcher) MatchDefinition(event *models.Event, def models.EventDefinition) bool {
	if event.EventType != def.EventType {
		return false
	}
	return m.MatchSelector(event, def.Selector)
}

// MatchSelector evaluates one selector against an event.
func (m *Matcher) MatchSelector(event *models.Event, sel models.Selector) bool {
	return m.match(event, sel.Component, Operator(sel.Operator), sel.Value, sel.Unit)
}

// MatchCondition evaluates one global condition against an event.
func (m *Matcher) MatchCondition(event *models.Event, cond models.Condition) bool {
	return m.match(event, cond.Name, Operator(cond.Operator), cond.Value, cond.Unit)
}

// MatchConditions reports whether the event satisfies every condition.
func (m *Matcher) MatchConditions(event *models.Event, conds []models.Condition) bool {
	for _, cond := range conds {
		if !m.MatchCondition(event, cond) {
			return false
		}
	}
	return true
}

func (m *Matcher) match(event *models.Event, name string, op Operator, value models.Value, unit string) bool {
	component, ok := ParseComponent(name)
	if !ok {
		return false
	}
	c, ok := m.resolve(event, component)
	if !ok {
		return false
	}
	if op == OpExists {
		return true
	}
	if unit != "" && c.unit != "" && unit != c.unit {
		return false
	}
	if component.Kind == KindTimeOfDay {
		value = clockValue(value)
	}
	return compare(op, c, value)
}

func compare(op Operator, c candidate, value models.Value) bool {
	switch op {
	case OpEqual:
		return equals(c, value)
	case OpLess, OpGreater, OpLessEqual, OpGreaterEqual:
		ord, ok := order(c, value)
		if !ok {
			return false
		}
		switch op {
		case OpLess:
			return ord < 0
		case OpGreater:
			return ord > 0
		case OpLessEqual:
			return ord <= 0
		default:
			return ord >= 0
		}
	case OpBetween:
		return between(c, value)
	case OpIn:
		if value.Kind != models.ValueList {
			return false
		}
		for _, option := range value.List {
			if equals(c, option) {
				return true
			}
		}
		return false
	case OpExists:
		return true
	default:
		return false
	}
}

func textEquals(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// equals compares text case-insensitively, numbers exactly and times as
// instants. A list candidate equals a value when any element does.
func equals(c candidate, value models.Value) bool {
	switch c.kind {
	case candList:
		if value.Kind != models.ValueText {
			return false
		}
		for _, item := range c.list {
			if textEquals(item, value.Text) {
				return true
			}
		}
		return false
	case candText:
		return value.Kind == models.ValueText && textEquals(c.text, value.Text)
	case candNumber:
		return value.Kind == models.ValueNumber && c.number == value.Number
	case candTime:
		t, ok := timeValue(value)
		return ok && c.time.Equal(t)
	default:
		return false
	}
}

// order compares candidate and value of the same kind.
func order(c candidate, value models.Value) (int, bool) {
	switch {
	case c.kind == candNumber && value.Kind == models.ValueNumber:
		return cmp.Compare(c.number, value.Number), true
	case c.kind == candText && value.Kind == models.ValueText:
		return strings.Compare(c.text, value.Text), true
	case c.kind == candTime:
		t, ok := timeValue(value)
		if !ok {
			return 0, false
		}
		return c.time.Compare(t), true
	default:
		return 0, false
	}
}

// between is inclusive. Numeric ranges whose lower bound exceeds the upper wrap
// around, so ["22:00", "02:00"] covers midnight.
func between(c candidate, value models.Value) bool {
	if value.Kind != models.ValueList || len(value.List) != 2 {
		return false
	}
	lower, upper := clockValue(value.List[0]), clockValue(value.List[1])

	if c.kind == candTime {
		lo, okLo := timeValue(lower)
		hi, okHi := timeValue(upper)
		return okLo && okHi && !c.time.Before(lo) && !c.time.After(hi)
	}

	n := c.number
	switch c.kind {
	case candNumber:
	case candText:
		minutes, ok := parseClock(c.text)
		if !ok {
			return false
		}
		n = minutes
	default:
		return false
	}
	if lower.Kind != models.ValueNumber || upper.Kind != models.ValueNumber {
		return false
	}
	if lower.Number <= upper.Number {
		return lower.Number <= n && n <= upper.Number
	}
	return n >= lower.Number || n <= upper.Number
}

func timeValue(v models.Value) (time.Time, bool) {
	if v.Kind != models.ValueText {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v.Text))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseClock reads "HH:MM" (extra ":SS" ignored) as minutes of day.
func parseClock(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return float64(hours*60 + minutes), true
}

// clockValue converts "HH:MM" text, or a list of them, to minutes of day.
// Other values are returned unchanged.
func clockValue(v models.Value) models.Value {
	switch v.Kind {
	case models.ValueText:
		if minutes, ok := parseClock(v.Text); ok {
			return models.NumberValue(minutes)
		}
	case models.ValueList:
		items := make([]models.Value, len(v.List))
		for i, item := range v.List {
			items[i] = clockValue(item)
		}
		return models.ListValue(items...)
	}
	return v
}

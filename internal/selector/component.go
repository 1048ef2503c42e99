package selector

import (
	"strings"
	"time"

	"github.com/rewired-gh/glucoracle/internal/models"
)

// Kind is the closed set of event components a predicate can address.
type Kind int

const (
	KindLabel Kind = iota + 1
	KindEventType
	KindSource
	KindAnnotationQuality
	KindStartTime
	KindEndTime
	KindContextTags
	KindTimeOfDay
	KindExposureComponent
)

// UnitDateTime is the unit carried by start_time and end_time candidates.
const UnitDateTime = "datetime"

var kindsByName = map[string]Kind{
	"label":              KindLabel,
	"food_name":          KindLabel,
	"event_type":         KindEventType,
	"source":             KindSource,
	"annotation_quality": KindAnnotationQuality,
	"start_time":         KindStartTime,
	"end_time":           KindEndTime,
	"context_tag":        KindContextTags,
	"context":            KindContextTags,
	"context_tags":       KindContextTags,
	"time_of_day":        KindTimeOfDay,
}

// Component is a parsed component reference. Name is only meaningful for
// KindExposureComponent, where it is matched exactly.
type Component struct {
	Kind Kind
	Name string
}

// ParseComponent classifies a component name. Well-known names are matched
// case-insensitively; anything else refers to a named exposure component.
// An empty name is rejected.
func ParseComponent(name string) (Component, bool) {
	if strings.TrimSpace(name) == "" {
		return Component{}, false
	}
	if kind, ok := kindsByName[strings.ToLower(name)]; ok {
		return Component{Kind: kind, Name: name}, true
	}
	return Component{Kind: KindExposureComponent, Name: name}, true
}

type candidateKind int

const (
	candText candidateKind = iota + 1
	candNumber
	candTime
	candList
)

// candidate is the resolved value of a component for one event.
type candidate struct {
	kind   candidateKind
	text   string
	number float64
	time   time.Time
	list   []string
	unit   string
}

func textCandidate(s string) (candidate, bool) {
	if s == "" {
		return candidate{}, false
	}
	return candidate{kind: candText, text: s}, true
}

// resolve looks a component up on an event. The boolean is false when the event
// has no value for it.
func (m *Matcher) resolve(event *models.Event, c Component) (candidate, bool) {
	switch c.Kind {
	case KindLabel:
		return textCandidate(event.Label)
	case KindEventType:
		return textCandidate(event.EventType)
	case KindSource:
		return textCandidate(event.Source)
	case KindAnnotationQuality:
		return candidate{kind: candNumber, number: event.AnnotationQuality}, true
	case KindStartTime:
		return candidate{kind: candTime, time: event.StartTime, unit: UnitDateTime}, true
	case KindEndTime:
		if event.EndTime == nil {
			return candidate{}, false
		}
		return candidate{kind: candTime, time: *event.EndTime, unit: UnitDateTime}, true
	case KindContextTags:
		return candidate{kind: candList, list: event.ContextTags()}, true
	case KindTimeOfDay:
		return candidate{kind: candNumber, number: m.minuteOfDay(event.StartTime)}, true
	case KindExposureComponent:
		component, ok := event.ExposureComponent(c.Name)
		if !ok {
			return candidate{}, false
		}
		return candidate{kind: candNumber, number: component.Value, unit: component.Unit}, true
	default:
		return candidate{}, false
	}
}

// minuteOfDay converts t to minutes since local midnight, using the matcher's
// location when set and t's own offset otherwise.
func (m *Matcher) minuteOfDay(t time.Time) float64 {
	if m.location != nil {
		t = t.In(m.location)
	}
	return float64(t.Hour()*60 + t.Minute())
}

package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/glucoracle/internal/models"
)

// lowCoverageThreshold marks windows with less than 70% of expected samples.
const lowCoverageThreshold = 0.7

// Extraction is the outcome of selecting one window from a series.
type Extraction struct {
	Window          models.WindowSpec
	Start           time.Time
	End             time.Time
	Samples         []models.Sample
	ExpectedSamples int
	CoverageRatio   float64
	QualityFlags    []string
}

// Values returns the glucose values of the extracted samples.
func (x Extraction) Values() []float64 {
	values := make([]float64, len(x.Samples))
	for i, s := range x.Samples {
		values[i] = s.GlucoseValue
	}
	return values
}

// ExpectedSamples is floor(duration / interval) + 1, floored at 0.
func ExpectedSamples(window models.WindowSpec, samplingIntervalMinutes float64) int {
	if samplingIntervalMinutes <= 0 {
		return 0
	}
	expected := int(math.Trunc(window.DurationMinutes()/samplingIntervalMinutes)) + 1
	if expected < 0 {
		return 0
	}
	return expected
}

func offset(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}

// Extract selects the samples with start <= t <= end around reference. An empty
// result is not an error; callers decide whether it is fatal.
func Extract(series *models.TimeSeries, reference time.Time, window models.WindowSpec) Extraction {
	start := reference.Add(offset(window.StartOffsetMinutes))
	end := reference.Add(offset(window.EndOffsetMinutes))

	samples := series.Samples
	lo := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(samples), func(i int) bool {
		return samples[i].Timestamp.After(end)
	})
	var selected []models.Sample
	if lo < hi {
		selected = samples[lo:hi]
	}

	expected := ExpectedSamples(window, series.SamplingIntervalMinutes)
	coverage := 1.0
	if expected > 0 {
		coverage = math.Min(float64(len(selected))/float64(expected), 1.0)
	}

	flags := newFlagSet()
	if coverage < lowCoverageThreshold {
		flags.add(models.FlagLowCoverage)
	}
	if coverage < 1.0 {
		flags.add(models.FlagMissingData)
	}
	for i := range selected {
		if selected[i].HasFlag(models.SampleFlagArtifact) || selected[i].HasFlag(models.SampleFlagSensorError) {
			flags.add(models.FlagInterpolated)
			break
		}
	}

	return Extraction{
		Window:          window,
		Start:           start,
		End:             end,
		Samples:         selected,
		ExpectedSamples: expected,
		CoverageRatio:   coverage,
		QualityFlags:    flags.sorted(),
	}
}

type flagSet map[string]struct{}

func newFlagSet(groups ...[]string) flagSet {
	set := make(flagSet)
	for _, group := range groups {
		for _, flag := range group {
			set.add(flag)
		}
	}
	return set
}

func (s flagSet) add(flag string) { s[flag] = struct{}{} }

func (s flagSet) sorted() []string {
	flags := make([]string, 0, len(s))
	for flag := range s {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	return flags
}

package interpret

import (
	"math"
	"sort"

	"github.com/sells-group/urban-texture/internal/table"
)

// MetricValue pairs a metric with a score.
type MetricValue struct {
	Metric string      `json:"metric" yaml:"metric"`
	Value  table.Float `json:"value" yaml:"value"`
}

// Series is an ordered list of per-metric values.
type Series []MetricValue

// NewSeries zips metric names with values.
func NewSeries(metrics []string, values []float64) Series {
	s := make(Series, len(metrics))
	for i, m := range metrics {
		s[i] = MetricValue{Metric: m, Value: table.Float(values[i])}
	}
	return s
}

// Get returns the value of metric, or NaN when absent.
func (s Series) Get(metric string) float64 {
	for _, mv := range s {
		if mv.Metric == metric {
			return float64(mv.Value)
		}
	}
	return math.NaN()
}

// Values returns the raw values in series order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, mv := range s {
		out[i] = float64(mv.Value)
	}
	return out
}

// Descending returns a copy sorted by value, highest first. NaN values sort
// last and ties break by metric name.
func (s Series) Descending() Series {
	out := append(Series(nil), s...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[j], out[i], true)
	})
	return out
}

// Ascending returns a copy sorted by value, lowest first. NaN values sort
// last and ties break by metric name.
func (s Series) Ascending() Series {
	out := append(Series(nil), s...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j], false)
	})
	return out
}

// less orders a before b; with desc the name tie-break is inverted so that a
// reversed comparison still lists equal values alphabetically.
func less(a, b MetricValue, desc bool) bool {
	av, bv := float64(a.Value), float64(b.Value)
	aNaN, bNaN := math.IsNaN(av), math.IsNaN(bv)
	switch {
	case aNaN && !bNaN:
		return desc
	case bNaN && !aNaN:
		return !desc
	case !aNaN && av != bv:
		return av < bv
	case desc:
		return a.Metric > b.Metric
	default:
		return a.Metric < b.Metric
	}
}

// Head returns at most n leading entries.
func (s Series) Head(n int) Series {
	if n > len(s) {
		n = len(s)
	}
	return append(Series(nil), s[:max(n, 0)]...)
}

// Extremes returns the n highest and n lowest entries. The two lists never
// share a metric; when fewer than 2n metrics exist the lowest list shrinks.
func (s Series) Extremes(n int) (top, bottom Series) {
	top = s.Descending().Head(n)
	taken := make(map[string]bool, len(top))
	for _, mv := range top {
		taken[mv.Metric] = true
	}
	for _, mv := range s.Ascending() {
		if len(bottom) == n {
			break
		}
		if !taken[mv.Metric] {
			bottom = append(bottom, mv)
		}
	}
	return top, bottom
}

// MetricCount pairs a metric with a count.
type MetricCount struct {
	Metric string `json:"metric" yaml:"metric"`
	Count  int    `json:"count" yaml:"count"`
}

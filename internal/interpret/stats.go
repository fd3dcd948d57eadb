package interpret

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/urban-texture/internal/table"
)

// MetricStats summarises one metric within a cluster.
type MetricStats struct {
	Metric   string      `json:"metric" yaml:"metric"`
	Mean     table.Float `json:"mean" yaml:"mean"`
	Variance table.Float `json:"variance" yaml:"variance"`
	Min      table.Float `json:"min" yaml:"min"`
	Max      table.Float `json:"max" yaml:"max"`
}

// BasicStats returns mean, sample variance, min and max per metric.
func BasicStats(metrics []string, data [][]float64) []MetricStats {
	out := make([]MetricStats, len(metrics))
	col := make([]float64, len(data))
	for j, m := range metrics {
		for i, row := range data {
			col[i] = row[j]
		}
		s := MetricStats{Metric: m, Mean: nan(), Variance: nan(), Min: nan(), Max: nan()}
		if len(col) > 0 {
			s.Mean = table.Float(stat.Mean(col, nil))
			s.Min = table.Float(floats.Min(col))
			s.Max = table.Float(floats.Max(col))
		}
		if len(col) > 1 {
			s.Variance = table.Float(stat.Variance(col, nil))
		}
		out[j] = s
	}
	return out
}

// Importance scores each metric by the ANOVA F-ratio of between-cluster to
// within-cluster variance, normalised to sum to one. Metrics that separate
// clusters perfectly share the whole mass.
func Importance(data [][]float64, labels []int, k, p int) []float64 {
	n := len(data)
	out := make([]float64, p)
	if k < 2 || n <= k {
		return out
	}

	sizes := make([]float64, k)
	for _, l := range labels {
		sizes[l]++
	}

	fRatio := make([]float64, p)
	perfect := 0
	means := make([]float64, k)
	for j := 0; j < p; j++ {
		for c := range means {
			means[c] = 0
		}
		var grand float64
		for i, row := range data {
			means[labels[i]] += row[j]
			grand += row[j]
		}
		grand /= float64(n)
		for c := range means {
			if sizes[c] > 0 {
				means[c] /= sizes[c]
			}
		}

		var ssb, ssw float64
		for c, m := range means {
			ssb += sizes[c] * (m - grand) * (m - grand)
		}
		for i, row := range data {
			d := row[j] - means[labels[i]]
			ssw += d * d
		}

		switch {
		case ssw == 0 && ssb > 0:
			fRatio[j] = math.Inf(1)
			perfect++
		case ssw == 0:
			fRatio[j] = 0
		default:
			fRatio[j] = (ssb / float64(k-1)) / (ssw / float64(n-k))
		}
	}

	if perfect > 0 {
		for j, f := range fRatio {
			if math.IsInf(f, 1) {
				out[j] = 1 / float64(perfect)
			}
		}
		return out
	}
	if total := floats.Sum(fRatio); total > 0 {
		for j, f := range fRatio {
			out[j] = f / total
		}
	}
	return out
}

func nan() table.Float { return table.Float(math.NaN()) }

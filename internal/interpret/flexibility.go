package interpret

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Scorer rates how loosely a cluster constrains one metric.
type Scorer interface {
	Score(values []float64) float64
}

// WeightedScorer blends the sample standard deviation with the Shannon
// entropy of a Bins-bin histogram normalised by ln(Bins).
type WeightedScorer struct {
	SDWeight      float64
	EntropyWeight float64
	Bins          int
}

// DefaultScorer averages spread and entropy.
var DefaultScorer = WeightedScorer{SDWeight: 0.5, EntropyWeight: 0.5, Bins: 10}

// Score implements Scorer.
func (s WeightedScorer) Score(values []float64) float64 {
	return s.SDWeight*sampleStdDev(values) + s.EntropyWeight*NormalizedEntropy(values, s.Bins)
}

// NormalizedEntropy is the entropy of an equal-width histogram over the
// value range, in [0, 1]. Constant input has zero entropy. NaN and infinite
// values are left out of the histogram.
func NormalizedEntropy(values []float64, bins int) float64 {
	values = finite(values)
	if len(values) == 0 || bins < 2 {
		return 0
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if hi == lo {
		return 0
	}

	counts := make([]float64, bins)
	width := (hi - lo) / float64(bins)
	for _, v := range values {
		b := int((v - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	floats.Scale(1/float64(len(values)), counts)
	return stat.Entropy(counts) / math.Log(float64(bins))
}

func finite(values []float64) []float64 {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out := make([]float64, 0, len(values))
			for _, v := range values {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					out = append(out, v)
				}
			}
			return out
		}
	}
	return values
}

func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Flexibility scores every metric column of a cluster's member matrix.
func Flexibility(scorer Scorer, metrics []string, data [][]float64) Series {
	values := make([]float64, len(metrics))
	col := make([]float64, len(data))
	for j := range metrics {
		for i, row := range data {
			col[i] = row[j]
		}
		values[j] = scorer.Score(col)
	}
	return NewSeries(metrics, values)
}

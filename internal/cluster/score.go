package cluster

import (
	"math"
	"math/rand"
	"sort"

	"github.com/mpraski/clusters"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

var distance = clusters.EuclideanDistance

// countLabels returns the number of distinct labels, assuming labels are
// canonical (0..m-1).
func countLabels(labels []int) int {
	m := 0
	for _, l := range labels {
		if l+1 > m {
			m = l + 1
		}
	}
	return m
}

func checkLabels(n, m int) error {
	if m < 2 || m > n-1 {
		return eris.Wrapf(ErrTooFewSamples, "cluster: %d labels for %d samples, need 2 to n-1", m, n)
	}
	return nil
}

// DaviesBouldin returns the Davies-Bouldin index of a partition. Lower is
// better. Clusters whose centroids coincide do not contribute a ratio.
func DaviesBouldin(data [][]float64, labels []int) (float64, error) {
	n := len(data)
	m := countLabels(labels)
	if err := checkLabels(n, m); err != nil {
		return 0, err
	}

	f := summarize(data, labels)
	centroids := f.Centroids
	m = len(centroids)

	intra := make([]float64, m)
	sizes := make([]int, m)
	for i, p := range data {
		c := f.Labels[i]
		intra[c] += distance(p, centroids[c])
		sizes[c]++
	}
	allZero := true
	for c := range intra {
		intra[c] /= float64(sizes[c])
		if intra[c] != 0 {
			allZero = false
		}
	}
	if allZero {
		return 0, nil
	}

	var total float64
	for i := 0; i < m; i++ {
		worst := 0.0
		for j := 0; j < m; j++ {
			if i == j {
				continue
			}
			d := distance(centroids[i], centroids[j])
			if d == 0 {
				continue
			}
			if r := (intra[i] + intra[j]) / d; r > worst {
				worst = r
			}
		}
		total += worst
	}
	return total / float64(m), nil
}

// Silhouette holds per-sample silhouette values.
type Silhouette struct {
	// Rows indexes the scored rows of the input.
	Rows    []int     `json:"rows"`
	Labels  []int     `json:"labels"`
	Values  []float64 `json:"values"`
	Average float64   `json:"average"`
}

// SilhouetteScores computes silhouette values for every row, or for a
// seeded random sample of sampleSize rows when 0 < sampleSize < len(data).
func SilhouetteScores(data [][]float64, labels []int, sampleSize int, seed int64) (*Silhouette, error) {
	n := len(data)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	if sampleSize > 0 && sampleSize < n {
		rng := rand.New(rand.NewSource(seed))
		rows = rng.Perm(n)[:sampleSize]
		sort.Ints(rows)
	}

	sub := make([][]float64, len(rows))
	subLabels := make([]int, len(rows))
	for i, r := range rows {
		sub[i] = data[r]
		subLabels[i] = labels[r]
	}
	// Sampling may skip a label entirely.
	canon := summarize(sub, subLabels).Labels
	m := countLabels(canon)
	if err := checkLabels(len(sub), m); err != nil {
		return nil, err
	}

	values := silhouetteValues(sub, canon, m)
	return &Silhouette{
		Rows:    rows,
		Labels:  subLabels,
		Values:  values,
		Average: floats.Sum(values) / float64(len(values)),
	}, nil
}

func silhouetteValues(data [][]float64, labels []int, m int) []float64 {
	sizes := make([]int, m)
	for _, l := range labels {
		sizes[l]++
	}

	values := make([]float64, len(data))
	sums := make([]float64, m)
	for i, p := range data {
		own := labels[i]
		if sizes[own] == 1 {
			continue
		}
		for c := range sums {
			sums[c] = 0
		}
		for j, q := range data {
			if i != j {
				sums[labels[j]] += distance(p, q)
			}
		}

		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c := range sums {
			if c == own || sizes[c] == 0 {
				continue
			}
			if mean := sums[c] / float64(sizes[c]); mean < b {
				b = mean
			}
		}
		if den := math.Max(a, b); den > 0 {
			values[i] = (b - a) / den
		}
	}
	return values
}

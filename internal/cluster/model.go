// Package cluster groups spatial units by their morphometric metrics and
// scores the resulting partitions.
package cluster

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/mpraski/clusters"
	"github.com/rotisserie/eris"

	"github.com/sells-group/urban-texture/internal/metrics"
)

// Model families.
const (
	FamilyKMeans     = "kmeans"
	FamilyKMeansLite = "kmeans-lite"
)

const (
	defaultNInit   = 10
	defaultMaxIter = 300
)

var (
	// ErrTooFewSamples is returned when the data cannot support the requested partition.
	ErrTooFewSamples = eris.New("cluster: too few samples")
	// ErrUnknownFamily is returned for an unsupported model family.
	ErrUnknownFamily = eris.New("cluster: unknown model family")
	// ErrInvalidOptions is returned for out-of-range parameters.
	ErrInvalidOptions = eris.New("cluster: invalid options")
)

// Fit is the outcome of partitioning a data set.
type Fit struct {
	// Labels holds one label per row in [0, len(Centroids)).
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// Sizes returns the member count of each cluster.
func (f *Fit) Sizes() []int {
	sizes := make([]int, len(f.Centroids))
	for _, l := range f.Labels {
		sizes[l]++
	}
	return sizes
}

// Model partitions rows into k groups.
type Model interface {
	Fit(ctx context.Context, data [][]float64, k int, seed int64) (*Fit, error)
}

// ModelOptions tunes the model families.
type ModelOptions struct {
	NInit   int
	MaxIter int
}

// NewModel returns the model registered under family.
func NewModel(family string, opts ModelOptions) (Model, error) {
	if opts.NInit <= 0 {
		opts.NInit = defaultNInit
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = defaultMaxIter
	}

	switch family {
	case "", FamilyKMeans:
		return &KMeans{NInit: opts.NInit, MaxIter: opts.MaxIter}, nil
	case FamilyKMeansLite:
		return &Lite{MaxIter: opts.MaxIter}, nil
	default:
		return nil, eris.Wrapf(ErrUnknownFamily, "cluster: family %q", family)
	}
}

func familyOf(m Model) string {
	switch m.(type) {
	case *KMeans:
		return FamilyKMeans
	case *Lite:
		return FamilyKMeansLite
	default:
		return "custom"
	}
}

// fit runs one model fit and records its duration.
func fit(ctx context.Context, m Model, data [][]float64, k int, seed int64) (*Fit, error) {
	start := time.Now()
	defer metrics.ObserveFit(familyOf(m), start)
	return m.Fit(ctx, data, k, seed)
}

// KMeans is Lloyd's algorithm with k-means++ seeding. Every fit draws from a
// source seeded with the given seed, so equal inputs give equal labels.
type KMeans struct {
	NInit   int
	MaxIter int
}

// Fit runs NInit restarts and keeps the one with the lowest inertia.
func (m *KMeans) Fit(ctx context.Context, data [][]float64, k int, seed int64) (*Fit, error) {
	if err := checkK(len(data), k); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	nInit := max(m.NInit, 1)
	maxIter := max(m.MaxIter, 1)

	var best *Fit
	for i := 0; i < nInit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "cluster: kmeans")
		}
		labels := lloyd(data, seedCentroids(data, k, rng), maxIter)
		f := summarize(data, labels)
		if best == nil || f.Inertia < best.Inertia {
			best = f
		}
	}
	return best, nil
}

// seedCentroids picks k starting centroids with the k-means++ rule.
func seedCentroids(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(data)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(data[rng.Intn(n)]))

	d2 := make([]float64, n)
	for i := range data {
		d2[i] = sqDist(data[i], centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}

		next := rng.Intn(n)
		if total > 0 {
			r := rng.Float64() * total
			var acc float64
			for i, d := range d2 {
				acc += d
				if acc > r {
					next = i
					break
				}
			}
		}

		c := clonePoint(data[next])
		centroids = append(centroids, c)
		for i := range data {
			if d := sqDist(data[i], c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centroids
}

// lloyd alternates assignment and update steps until labels stop changing.
func lloyd(data, centroids [][]float64, maxIter int) []int {
	labels := make([]int, len(data))
	for i := range labels {
		labels[i] = -1
	}

	for it := 0; it < maxIter; it++ {
		if !assign(data, centroids, labels) {
			break
		}
		relocateEmpty(data, centroids, labels)
		updateCentroids(data, centroids, labels)
	}
	return labels
}

func assign(data, centroids [][]float64, labels []int) bool {
	changed := false
	for i, p := range data {
		best, bestD := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := sqDist(p, centroid); d < bestD {
				best, bestD = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

// relocateEmpty moves the point farthest from its centroid into each empty cluster.
func relocateEmpty(data, centroids [][]float64, labels []int) {
	counts := make([]int, len(centroids))
	for _, l := range labels {
		counts[l]++
	}

	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		far, farD := -1, 0.0
		for i, p := range data {
			if counts[labels[i]] < 2 {
				continue
			}
			if d := sqDist(p, centroids[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			return
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c]++
		copy(centroids[c], data[far])
	}
}

func updateCentroids(data, centroids [][]float64, labels []int) {
	counts := make([]int, len(centroids))
	for c := range centroids {
		for j := range centroids[c] {
			centroids[c][j] = 0
		}
	}
	for i, p := range data {
		c := labels[i]
		counts[c]++
		for j, v := range p {
			centroids[c][j] += v
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] /= float64(counts[c])
		}
	}
}

// Lite delegates to github.com/mpraski/clusters. The library seeds itself
// from the clock, so labels may differ between runs.
type Lite struct {
	MaxIter int
}

// Fit ignores seed.
func (m *Lite) Fit(ctx context.Context, data [][]float64, k int, _ int64) (*Fit, error) {
	if err := checkK(len(data), k); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "cluster: kmeans-lite")
	}

	c, err := clusters.KMeans(max(m.MaxIter, 1), k, clusters.EuclideanDistance)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: create kmeans-lite")
	}
	if err := c.Learn(data); err != nil {
		return nil, eris.Wrap(err, "cluster: kmeans-lite learn")
	}
	return summarize(data, append([]int(nil), c.Guesses()...)), nil
}

func checkK(n, k int) error {
	if k < 1 {
		return eris.Wrapf(ErrInvalidOptions, "cluster: k must be positive, got %d", k)
	}
	if n < k {
		return eris.Wrapf(ErrTooFewSamples, "cluster: %d rows for %d clusters", n, k)
	}
	return nil
}

// summarize relabels clusters in order of first appearance, drops empty
// clusters and computes centroids and inertia.
func summarize(data [][]float64, labels []int) *Fit {
	canon := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		c, ok := canon[l]
		if !ok {
			c = len(canon)
			canon[l] = c
		}
		out[i] = c
	}

	dim := 0
	if len(data) > 0 {
		dim = len(data[0])
	}
	centroids := make([][]float64, len(canon))
	for c := range centroids {
		centroids[c] = make([]float64, dim)
	}
	updateCentroids(data, centroids, out)

	var inertia float64
	for i, p := range data {
		inertia += sqDist(p, centroids[out[i]])
	}
	return &Fit{Labels: out, Centroids: centroids, Inertia: inertia}
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}

package interpret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/table"
)

func TestNormalizedEntropy(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		bins   int
		want   float64
	}{
		{"constant", []float64{3, 3, 3}, 10, 0},
		{"empty", nil, 10, 0},
		{"uniform over two bins", []float64{0, 1}, 2, 1},
		{"uniform over all bins", []float64{0, 1, 2, 3}, 4, 1},
		{"half and half of four bins", []float64{0, 0, 3, 3}, 4, 0.5},
		{"infinite value ignored", []float64{0, 1, math.Inf(1)}, 2, 1},
		{"only non-finite", []float64{math.NaN(), math.Inf(-1)}, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizedEntropy(tt.values, tt.bins), 1e-12)
		})
	}
}

func TestWeightedScorer(t *testing.T) {
	s := WeightedScorer{SDWeight: 1, EntropyWeight: 0, Bins: 10}
	// Sample standard deviation of 2,4,4,4,5,5,7,9 is sqrt(32/7).
	assert.InDelta(t, math.Sqrt(32.0/7), s.Score([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)

	assert.Equal(t, 0.0, DefaultScorer.Score([]float64{1}))
	assert.InDelta(t, 0.5*math.Sqrt(0.5)+0.5*math.Log(2)/math.Log(10), DefaultScorer.Score([]float64{0, 1}), 1e-12)
}

func TestSeries_Extremes(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		wantTop    int
		wantBottom int
	}{
		{"twelve metrics", 12, 5, 5},
		{"ten metrics", 10, 5, 5},
		{"seven metrics", 7, 5, 2},
		{"three metrics", 3, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := make([]string, tt.n)
			values := make([]float64, tt.n)
			for i := range metrics {
				metrics[i] = fmt.Sprintf("m%02d", i)
				values[i] = float64(i % 4)
			}
			top, bottom := NewSeries(metrics, values).Extremes(5)
			assert.Len(t, top, tt.wantTop)
			assert.Len(t, bottom, tt.wantBottom)
			assert.LessOrEqual(t, len(top)+len(bottom), 10)

			seen := map[string]bool{}
			for _, mv := range top {
				seen[mv.Metric] = true
			}
			for _, mv := range bottom {
				assert.False(t, seen[mv.Metric], "metric %s in both lists", mv.Metric)
			}
		})
	}
}

func TestSeries_Ordering(t *testing.T) {
	s := NewSeries([]string{"b", "a", "c", "d"}, []float64{1, 1, math.NaN(), 2})

	desc := s.Descending()
	assert.Equal(t, []string{"d", "a", "b", "c"}, metricsOf(desc))

	asc := s.Ascending()
	assert.Equal(t, []string{"a", "b", "d", "c"}, metricsOf(asc))

	assert.Equal(t, 2.0, s.Get("d"))
	assert.True(t, math.IsNaN(s.Get("zzz")))
}

func metricsOf(s Series) []string {
	out := make([]string, len(s))
	for i, mv := range s {
		out[i] = mv.Metric
	}
	return out
}

func TestVIF(t *testing.T) {
	data := [][]float64{{1, 1, 7}, {2, 3, 7}, {3, 2, 7}, {4, 4, 7}}
	vif := VIF(data, 3)

	// Pearson r of the first two columns is 0.8.
	assert.InDelta(t, 1/(1-0.64), vif[0], 1e-9)
	assert.InDelta(t, 1/(1-0.64), vif[1], 1e-9)
	assert.True(t, math.IsNaN(vif[2]), "constant column")
}

func TestVIF_Singular(t *testing.T) {
	data := [][]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}}
	for _, v := range VIF(data, 2) {
		assert.True(t, v > 1e6 || math.IsInf(v, 1), "got %v", v)
	}
}

func TestVIF_SmallInputs(t *testing.T) {
	assert.True(t, math.IsNaN(VIF([][]float64{{1, 2}}, 2)[0]))
	assert.Equal(t, []float64{1}, VIF([][]float64{{1}, {2}, {4}}, 1))
}

func TestIQROutliers(t *testing.T) {
	data := [][]float64{{1, 10}, {2, 11}, {3, 12}, {4, 13}, {100, 12}, {3, -50}}
	res := IQROutliers(data, 2, 1.5)

	assert.Equal(t, []int{4, 5}, res.Outliers)
	assert.Equal(t, []int{1, 1}, res.Influence)
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(sorted, 0.25), 1e-12)
	assert.InDelta(t, 3.25, quantile(sorted, 0.75), 1e-12)
	assert.Equal(t, 4.0, quantile(sorted, 1))
	assert.True(t, math.IsNaN(quantile(nil, 0.5)))
}

func TestLocalOutlierFactor(t *testing.T) {
	var data [][]float64
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			data = append(data, []float64{float64(x), float64(y)})
		}
	}
	data = append(data, []float64{10, 10})

	res := LocalOutlierFactor(data, 3, 1.5)
	require.NotNil(t, res)

	assert.Equal(t, 3, res.Neighbors)
	assert.Equal(t, []int{9}, res.Outliers)
	assert.Greater(t, res.Scores[9], 5.0)
	for i := 0; i < 9; i++ {
		assert.Less(t, res.Scores[i], 1.5)
	}

	assert.Nil(t, LocalOutlierFactor(data[:2], 20, 1.5))
	assert.Equal(t, 2, LocalOutlierFactor(data[:3], 20, 1.5).Neighbors)
}

func TestImportance(t *testing.T) {
	// Metric a separates the clusters, b is noise.
	data := [][]float64{{0, 1}, {0.1, 2}, {0.2, 3}, {10, 1}, {10.1, 3}, {10.2, 2}}
	labels := []int{0, 0, 0, 1, 1, 1}

	imp := Importance(data, labels, 2, 2)
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-12)
	assert.Greater(t, imp[0], 0.99)

	perfect := Importance([][]float64{{0, 1}, {0, 5}, {1, 2}, {1, 4}}, []int{0, 0, 1, 1}, 2, 2)
	assert.Equal(t, []float64{1, 0}, perfect)
}

func TestBasicStats(t *testing.T) {
	s := BasicStats([]string{"a"}, [][]float64{{1}, {2}, {3}, {6}})
	require.Len(t, s, 1)
	assert.Equal(t, table.Float(3), s[0].Mean)
	assert.InDelta(t, 14.0/3, float64(s[0].Variance), 1e-12)
	assert.Equal(t, table.Float(1), s[0].Min)
	assert.Equal(t, table.Float(6), s[0].Max)
}

func classification(t *testing.T) *cluster.Classification {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	metrics := []string{"m0", "m1", "m2", "m3"}
	var data [][]float64
	var labels []int
	var ids []string
	for c := 0; c < 3; c++ {
		for i := 0; i < 15; i++ {
			row := make([]float64, len(metrics))
			for j := range row {
				row[j] = float64(c*5) + rng.NormFloat64()
			}
			data = append(data, row)
			labels = append(labels, c)
			ids = append(ids, fmt.Sprintf("u%d", len(ids)))
		}
	}
	return &cluster.Classification{
		K:        3,
		Metrics:  metrics,
		Features: &table.Matrix{Metrics: metrics, Data: data},
		IDs:      ids,
		Labels:   labels,
		Sizes:    []int{15, 15, 15},
	}
}

func TestAnalyze(t *testing.T) {
	c := classification(t)
	r, err := Analyze(context.Background(), c, nil, Options{Seed: 1, Parallelism: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, r.K)
	require.Len(t, r.Clusters, 3)
	for ci, cr := range r.Clusters {
		assert.Equal(t, ci, cr.Cluster)
		assert.Equal(t, 15, cr.Size)
		assert.Len(t, cr.Flexibility, 4)
		assert.Len(t, cr.FlexibilityTop, 4)
		assert.Empty(t, cr.FlexibilityBottom)
		assert.Len(t, cr.LOF, 15)
		assert.Len(t, cr.Stats, 4)
		assert.Len(t, cr.Correlation, 4)
		assert.Len(t, cr.OutlierIDs, len(cr.Outliers))
		for _, row := range cr.Outliers {
			assert.Equal(t, ci, c.Labels[row])
		}
	}

	// Mean VIF is the plain mean of the per-cluster values.
	for j, metric := range r.Metrics {
		var sum float64
		for _, cr := range r.Clusters {
			sum += float64(cr.VIF[j].Value)
		}
		assert.InDelta(t, sum/3, r.MeanVIF.Get(metric), 1e-9)
	}

	var total float64
	for _, mv := range r.Importance {
		total += float64(mv.Value)
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Len(t, r.TopImportance, 4)
	require.NotNil(t, r.Silhouette)
	assert.Greater(t, r.Silhouette.Average, 0.5)

	_, err = json.Marshal(r)
	assert.NoError(t, err)
}

func TestMeanVIF(t *testing.T) {
	metrics := []string{"a", "b", "c"}
	results := []ClusterResult{
		{VIF: NewSeries(metrics, []float64{2, math.Inf(1), math.NaN()})},
		{VIF: NewSeries(metrics, []float64{4, 6, math.NaN()})},
	}

	mean := meanVIF(metrics, results)
	assert.InDelta(t, 3.0, mean.Get("a"), 1e-12)
	assert.True(t, math.IsInf(mean.Get("b"), 1), "singular cluster keeps the mean infinite")
	assert.True(t, math.IsNaN(mean.Get("c")))
}

func TestAnalyze_NonFiniteValues(t *testing.T) {
	metrics := []string{"a", "b"}
	c := &cluster.Classification{
		Metrics: metrics,
		Features: &table.Matrix{Metrics: metrics, Data: [][]float64{
			{0.1, 1}, {0.2, 2}, {math.Inf(1), 3}, {5, 5}, {5.1, 5.2}, {5.2, 5.1},
		}},
		Labels: []int{0, 0, 0, 1, 1, 1},
		Sizes:  []int{3, 3},
	}

	var r *Report
	require.NotPanics(t, func() {
		var err error
		r, err = Analyze(context.Background(), c, nil, Options{})
		require.NoError(t, err)
	})
	require.Len(t, r.Clusters, 2)
	assert.Len(t, r.Clusters[0].Flexibility, 2)
}

func TestAnalyze_SmallClusterSkipsLOF(t *testing.T) {
	metrics := []string{"a", "b"}
	c := &cluster.Classification{
		Metrics:  metrics,
		Features: &table.Matrix{Metrics: metrics, Data: [][]float64{{0, 0}, {0.1, 0.2}, {0.2, 0.1}, {0.3, 0.3}, {9, 9}, {9.1, 9.1}}},
		Labels:   []int{0, 0, 0, 0, 1, 1},
		Sizes:    []int{4, 2},
	}
	r, err := Analyze(context.Background(), c, nil, Options{})
	require.NoError(t, err)
	assert.Nil(t, r.Clusters[1].LOF)
	assert.Empty(t, r.Clusters[1].LOFOutliers)
	assert.NotNil(t, r.Clusters[0].LOF)
}

func TestAnalyze_MetricMismatch(t *testing.T) {
	c := classification(t)

	other := &table.Matrix{Metrics: []string{"m0", "m1"}, Data: c.Features.Data}
	_, err := Analyze(context.Background(), c, other, Options{})
	assert.True(t, errors.Is(err, ErrMetricMismatch))

	short := &table.Matrix{Metrics: c.Metrics, Data: c.Features.Data[:10]}
	_, err = Analyze(context.Background(), c, short, Options{})
	assert.True(t, errors.Is(err, ErrMetricMismatch))
}

// Package interpret explains a classification: how flexible each metric is
// within a cluster, how collinear the metrics are, which members are
// outliers and which metrics drive the partition.
package interpret

import (
	"context"
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/table"
)

// ErrMetricMismatch is returned when the analysed matrix is not the one the
// classification was fitted on.
var ErrMetricMismatch = eris.New("interpret: metric columns differ from the classification")

// Options tunes an analysis pass. Zero values fall back to defaults.
type Options struct {
	Scorer        Scorer
	IQRMultiplier float64
	LOFNeighbors  int
	LOFThreshold  float64
	// ExtremesN is the size of the top and bottom flexibility lists.
	ExtremesN int
	// TopN is the number of importance entries reported as top.
	TopN             int
	SilhouetteSample int
	Seed             int64
	Parallelism      int
}

func (o Options) withDefaults() Options {
	if o.Scorer == nil {
		o.Scorer = DefaultScorer
	}
	if o.IQRMultiplier <= 0 {
		o.IQRMultiplier = 1.5
	}
	if o.LOFNeighbors <= 0 {
		o.LOFNeighbors = 20
	}
	if o.LOFThreshold <= 0 {
		o.LOFThreshold = 1.5
	}
	if o.ExtremesN <= 0 {
		o.ExtremesN = 5
	}
	if o.TopN <= 0 {
		o.TopN = 10
	}
	return o
}

// ClusterResult is the interpretation of one cluster.
type ClusterResult struct {
	Cluster int `json:"cluster" yaml:"cluster"`
	Size    int `json:"size" yaml:"size"`
	// Rows are the members' positions in the classified matrix.
	Rows              []int         `json:"-" yaml:"-"`
	Flexibility       Series        `json:"flexibility" yaml:"flexibility"`
	FlexibilityTop    Series        `json:"flexibility_top" yaml:"flexibility_top"`
	FlexibilityBottom Series        `json:"flexibility_bottom" yaml:"flexibility_bottom"`
	VIF               Series        `json:"vif" yaml:"vif"`
	Outliers          []int         `json:"outliers" yaml:"outliers"`
	OutlierIDs        []string      `json:"outlier_ids,omitempty" yaml:"outlier_ids,omitempty"`
	Influence         []MetricCount `json:"influence" yaml:"influence"`
	// LOF is nil when the cluster has fewer than three members.
	LOF           []table.Float   `json:"lof,omitempty" yaml:"lof,omitempty"`
	LOFOutliers   []int           `json:"lof_outliers" yaml:"lof_outliers"`
	LOFOutlierIDs []string        `json:"lof_outlier_ids,omitempty" yaml:"lof_outlier_ids,omitempty"`
	Stats         []MetricStats   `json:"stats" yaml:"stats"`
	Correlation   [][]table.Float `json:"correlation" yaml:"correlation"`
}

// Report is the interpretation of a whole classification.
type Report struct {
	K       int      `json:"k" yaml:"k"`
	Metrics []string `json:"metrics" yaml:"metrics"`

	Clusters []ClusterResult `json:"clusters" yaml:"clusters"`

	MeanVIF            Series        `json:"mean_vif" yaml:"mean_vif"`
	OverallFlexibility Series        `json:"overall_flexibility" yaml:"overall_flexibility"`
	OverallTop         Series        `json:"overall_top" yaml:"overall_top"`
	OverallBottom      Series        `json:"overall_bottom" yaml:"overall_bottom"`
	OverallInfluence   []MetricCount `json:"overall_influence" yaml:"overall_influence"`
	// Importance is sorted descending.
	Importance    Series `json:"importance" yaml:"importance"`
	TopImportance Series `json:"top_importance" yaml:"top_importance"`

	Silhouette *cluster.Silhouette `json:"silhouette,omitempty" yaml:"silhouette,omitempty"`
}

// Analyze interprets c over m, the matrix it was fitted on. A nil m uses
// c.Features.
func Analyze(ctx context.Context, c *cluster.Classification, m *table.Matrix, opts Options) (*Report, error) {
	if c == nil {
		return nil, eris.New("interpret: classification is required")
	}
	if m == nil {
		m = c.Features
	}
	if m == nil || !slices.Equal(m.Metrics, c.Metrics) {
		return nil, ErrMetricMismatch
	}
	if m.Rows() != len(c.Labels) {
		return nil, eris.Wrapf(ErrMetricMismatch, "interpret: %d rows for %d labels", m.Rows(), len(c.Labels))
	}
	opts = opts.withDefaults()

	members := c.Members()
	p := len(m.Metrics)
	results := make([]ClusterResult, len(members))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for ci, rows := range members {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "interpret: analyze")
			}
			results[ci] = analyzeCluster(ci, rows, m.Subset(rows).Data, m.Metrics, c.IDs, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Report{K: len(members), Metrics: m.Metrics, Clusters: results}
	r.MeanVIF = meanVIF(m.Metrics, results)
	r.OverallFlexibility = overallFlexibility(m.Metrics, results)
	r.OverallTop, r.OverallBottom = r.OverallFlexibility.Extremes(opts.ExtremesN)
	r.OverallInfluence = overallInfluence(m.Metrics, results)
	r.Importance = NewSeries(m.Metrics, Importance(m.Data, c.Labels, len(members), p)).Descending()
	r.TopImportance = r.Importance.Head(opts.TopN)

	sil, err := cluster.SilhouetteScores(m.Data, c.Labels, opts.SilhouetteSample, opts.Seed)
	if err != nil {
		zap.L().Warn("interpret: silhouette skipped", zap.Error(err))
	} else {
		r.Silhouette = sil
	}

	zap.L().Info("interpret: analysis complete",
		zap.Int("clusters", r.K),
		zap.Int("metrics", p),
	)
	return r, nil
}

func analyzeCluster(ci int, rows []int, data [][]float64, metrics []string, ids []string, opts Options) ClusterResult {
	p := len(metrics)
	res := ClusterResult{Cluster: ci, Size: len(rows), Rows: rows}

	res.Flexibility = Flexibility(opts.Scorer, metrics, data)
	res.FlexibilityTop, res.FlexibilityBottom = res.Flexibility.Extremes(opts.ExtremesN)
	res.VIF = NewSeries(metrics, VIF(data, p))

	iqr := IQROutliers(data, p, opts.IQRMultiplier)
	res.Outliers = toRows(rows, iqr.Outliers)
	res.OutlierIDs = toIDs(ids, res.Outliers)
	res.Influence = make([]MetricCount, p)
	for j, metric := range metrics {
		res.Influence[j] = MetricCount{Metric: metric, Count: iqr.Influence[j]}
	}

	if lof := LocalOutlierFactor(data, opts.LOFNeighbors, opts.LOFThreshold); lof != nil {
		res.LOF = table.Floats(lof.Scores)
		res.LOFOutliers = toRows(rows, lof.Outliers)
		res.LOFOutlierIDs = toIDs(ids, res.LOFOutliers)
	}

	res.Stats = BasicStats(metrics, data)
	corr := Correlation(data, p)
	res.Correlation = make([][]table.Float, p)
	for j := range corr {
		res.Correlation[j] = table.Floats(corr[j])
	}
	return res
}

// toRows maps member positions back to matrix rows.
func toRows(rows []int, positions []int) []int {
	out := make([]int, len(positions))
	for i, pos := range positions {
		out[i] = rows[pos]
	}
	return out
}

func toIDs(ids []string, rows []int) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = ids[r]
	}
	return out
}

// meanVIF averages the per-cluster VIF values of each metric. NaN values
// (constant metrics) are skipped; an infinite VIF keeps the mean infinite.
func meanVIF(metrics []string, results []ClusterResult) Series {
	values := make([]float64, len(metrics))
	for j := range metrics {
		var sum float64
		var n int
		for _, r := range results {
			v := float64(r.VIF[j].Value)
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		values[j] = math.NaN()
		if n > 0 {
			values[j] = sum / float64(n)
		}
	}
	return NewSeries(metrics, values)
}

func overallFlexibility(metrics []string, results []ClusterResult) Series {
	values := make([]float64, len(metrics))
	for j := range metrics {
		for _, r := range results {
			values[j] += float64(r.Flexibility[j].Value)
		}
		values[j] /= float64(max(len(results), 1))
	}
	return NewSeries(metrics, values)
}

func overallInfluence(metrics []string, results []ClusterResult) []MetricCount {
	out := make([]MetricCount, len(metrics))
	for j, m := range metrics {
		out[j].Metric = m
		for _, r := range results {
			out[j].Count += r.Influence[j].Count
		}
	}
	return out
}

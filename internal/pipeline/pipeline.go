// Package pipeline runs the classification workflow shared by the HTTP API
// and the CLI: load a bundle, recommend a cluster count, classify, analyse.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/bundle"
	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/config"
	"github.com/sells-group/urban-texture/internal/export"
	"github.com/sells-group/urban-texture/internal/interpret"
	"github.com/sells-group/urban-texture/internal/layer"
	"github.com/sells-group/urban-texture/internal/metrics"
	"github.com/sells-group/urban-texture/internal/table"
)

// Pipeline maps configuration onto each workflow step.
type Pipeline struct {
	cfg *config.Config
}

// New creates a Pipeline.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Config returns the configuration the pipeline runs with.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// phase logs the duration and outcome of one step.
func phase[T any](name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		zap.L().Warn("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return out, err
	}
	zap.L().Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return out, nil
}

// CSVOptions returns the decoding options for input tables.
func (p *Pipeline) CSVOptions() table.CSVOptions {
	return table.CSVOptions{Encoding: p.cfg.Data.Encoding}
}

// FeatureOptions names the non-metric columns.
func (p *Pipeline) FeatureOptions() table.FeatureOptions {
	return table.FeatureOptions{
		IDColumn:       p.cfg.Data.IDColumn,
		GeometryColumn: p.cfg.Data.GeometryColumn,
		Exclude:        p.cfg.Data.Exclude,
	}
}

// RecommendOptions maps the cluster section onto the recommender.
func (p *Pipeline) RecommendOptions() cluster.RecommendOptions {
	c := p.cfg.Cluster
	return cluster.RecommendOptions{
		Family:           c.Family,
		MinClusters:      c.MinClusters,
		MaxClusters:      c.MaxClusters,
		Repeat:           c.Repeat,
		NInit:            c.NInit,
		MaxIter:          c.MaxIter,
		RandomState:      c.RandomState,
		Standardize:      c.Standardize,
		Parallelism:      c.Parallelism,
		SilhouetteSample: c.SilhouetteSample,
	}
}

// ClassifyOptions maps the cluster and data sections onto the classifier.
func (p *Pipeline) ClassifyOptions() cluster.ClassifyOptions {
	c := p.cfg.Cluster
	return cluster.ClassifyOptions{
		Family:         c.Family,
		NInit:          c.NInit,
		MaxIter:        c.MaxIter,
		RandomState:    c.RandomState,
		Standardize:    c.Standardize,
		IDColumn:       p.cfg.Data.IDColumn,
		GeometryColumn: p.cfg.Data.GeometryColumn,
		Exclude:        p.cfg.Data.Exclude,
	}
}

// AnalyzeOptions maps the interpret section onto the interpreter.
func (p *Pipeline) AnalyzeOptions() interpret.Options {
	in := p.cfg.Interpret
	return interpret.Options{
		Scorer: interpret.WeightedScorer{
			SDWeight:      in.SDWeight,
			EntropyWeight: in.EntropyWeight,
			Bins:          in.Bins,
		},
		IQRMultiplier:    in.IQRMultiplier,
		LOFNeighbors:     in.LOFNeighbors,
		LOFThreshold:     in.LOFThreshold,
		TopN:             in.TopN,
		SilhouetteSample: p.cfg.Cluster.SilhouetteSample,
		Seed:             p.cfg.Cluster.RandomState,
		Parallelism:      p.cfg.Cluster.Parallelism,
	}
}

// ExportOptions returns the export settings rooted at outputDir.
func (p *Pipeline) ExportOptions(outputDir string) export.Options {
	opts := export.DefaultOptions()
	if outputDir != "" {
		opts.OutputDir = outputDir
	}
	e := p.cfg.Export
	if e.CSVName != "" {
		opts.CSVName = e.CSVName
	}
	if e.LayerName != "" {
		opts.LayerName = e.LayerName
	}
	if e.ReportName != "" {
		opts.ReportName = e.ReportName
	}
	if p.cfg.Data.GeometryColumn != "" {
		opts.GeometryColumn = p.cfg.Data.GeometryColumn
	}
	if p.cfg.Data.SRID != 0 {
		opts.SRID = p.cfg.Data.SRID
	}
	return opts
}

// LoadZIP reads an uploaded archive.
func (p *Pipeline) LoadZIP(ctx context.Context, data []byte) (*bundle.Bundle, error) {
	return phase("load", func() (*bundle.Bundle, error) {
		return bundle.ReadZIP(ctx, data, p.CSVOptions())
	})
}

// LoadZIPFile reads an archive from disk.
func (p *Pipeline) LoadZIPFile(ctx context.Context, path string) (*bundle.Bundle, error) {
	return phase("load", func() (*bundle.Bundle, error) {
		return bundle.ReadZIPFile(ctx, path, p.CSVOptions())
	})
}

// LoadDir reads the four CSVs from a data directory.
func (p *Pipeline) LoadDir(ctx context.Context, dir string) (*bundle.Bundle, error) {
	return phase("load", func() (*bundle.Bundle, error) {
		return bundle.ReadDir(ctx, dir, p.CSVOptions())
	})
}

// ReplaceBuildings swaps the bundle's buildings table for a GIS layer read
// from path.
func (p *Pipeline) ReplaceBuildings(ctx context.Context, b *bundle.Bundle, path, name string) error {
	l, err := layer.Load(ctx, path, name)
	if err != nil {
		return err
	}
	t, err := l.Table(p.cfg.Data.GeometryColumn)
	if err != nil {
		return eris.Wrap(err, "pipeline: buildings layer")
	}
	b.Buildings = t
	zap.L().Info("pipeline: buildings loaded from layer",
		zap.String("path", path),
		zap.Int("features", l.Len()),
	)
	return nil
}

// Features builds the clustering matrix from the standardized table.
func (p *Pipeline) Features(b *bundle.Bundle) (*table.Matrix, error) {
	if b == nil || b.Standardized == nil {
		return nil, eris.New("pipeline: no standardized table")
	}
	cols := table.MetricColumns(b.Standardized, p.FeatureOptions())
	if len(cols) == 0 {
		return nil, cluster.ErrNoMetrics
	}
	m, err := b.Standardized.Features(cols)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build features")
	}
	return m, nil
}

// Recommend scores the candidate cluster counts for b.
func (p *Pipeline) Recommend(ctx context.Context, b *bundle.Bundle) (*cluster.Recommendation, error) {
	return phase("recommend", func() (*cluster.Recommendation, error) {
		m, err := p.Features(b)
		if err != nil {
			return nil, err
		}
		rec, err := cluster.Recommend(ctx, m, p.RecommendOptions())
		if err != nil {
			return nil, err
		}
		metrics.RecommendationsTotal.Inc()
		return rec, nil
	})
}

// Classify partitions b into k clusters. A k of zero uses the configured
// default.
func (p *Pipeline) Classify(ctx context.Context, b *bundle.Bundle, k int) (*cluster.Classification, error) {
	if k == 0 {
		k = p.cfg.Cluster.DefaultClusters
	}
	if err := cluster.CheckTypes(k); err != nil {
		return nil, err
	}
	return phase("classify", func() (*cluster.Classification, error) {
		if b == nil {
			return nil, eris.New("pipeline: no data loaded")
		}
		c, err := cluster.Classify(ctx, cluster.Input{
			Merged:       b.Merged,
			Buildings:    b.Buildings,
			Standardized: b.Standardized,
		}, k, p.ClassifyOptions())
		if err != nil {
			return nil, err
		}
		metrics.ClassificationsTotal.Inc()
		return c, nil
	})
}

// Analyze interprets c on the matrix it was fitted on.
func (p *Pipeline) Analyze(ctx context.Context, c *cluster.Classification) (*interpret.Report, error) {
	return phase("analyze", func() (*interpret.Report, error) {
		return interpret.Analyze(ctx, c, nil, p.AnalyzeOptions())
	})
}

package cluster

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/table"
)

// ClusterColumn is the label column appended to classified records.
const ClusterColumn = "cluster"

// Bounds on the number of urban types a user may request.
const (
	MinTypes = 2
	MaxTypes = 20
)

var (
	// ErrNoMetrics is returned when the standardized table has no numeric columns.
	ErrNoMetrics = eris.New("cluster: no numeric metric columns")
	// ErrRowMismatch is returned when tables without ids differ in length.
	ErrRowMismatch = eris.New("cluster: row counts differ")
)

// CheckTypes rejects a requested cluster count outside [MinTypes, MaxTypes].
func CheckTypes(k int) error {
	if k < MinTypes || k > MaxTypes {
		return eris.Wrapf(ErrInvalidOptions, "cluster: %d clusters requested, must be between %d and %d", k, MinTypes, MaxTypes)
	}
	return nil
}

// Input carries the tables a classification joins.
type Input struct {
	Merged       *table.Table
	Buildings    *table.Table
	Standardized *table.Table
}

// ClassifyOptions controls a classification run.
type ClassifyOptions struct {
	Family         string
	NInit          int
	MaxIter        int
	RandomState    int64
	Standardize    bool
	IDColumn       string
	GeometryColumn string
	Exclude        []string
}

// Classification is a labeled partition of the standardized rows.
type Classification struct {
	K      int    `json:"k"`
	Family string `json:"family"`
	Seed   int64  `json:"seed"`
	// Metrics are the columns used for fitting, in matrix order.
	Metrics []string `json:"metrics"`
	// Features is the matrix the model was fitted on.
	Features *table.Matrix `json:"-"`
	// IDs holds the id of every feature row, empty when ids are absent.
	IDs       []string    `json:"-"`
	Labels    []int       `json:"-"`
	Sizes     []int       `json:"sizes"`
	Centroids [][]float64 `json:"centroids"`
	Inertia   float64     `json:"inertia"`
	// Table is the merged records with cluster and geometry columns.
	Table *table.Table `json:"-"`
	// Unmatched counts merged rows without a label.
	Unmatched int `json:"unmatched"`
}

// Classify fits k clusters on the standardized metrics, appends the labels
// to the merged records and joins building geometry by id.
func Classify(ctx context.Context, in Input, k int, opts ClassifyOptions) (*Classification, error) {
	if in.Merged == nil || in.Standardized == nil {
		return nil, eris.Wrap(ErrInvalidOptions, "cluster: merged and standardized tables are required")
	}

	metricCols := table.MetricColumns(in.Standardized, table.FeatureOptions{
		IDColumn:       opts.IDColumn,
		GeometryColumn: opts.GeometryColumn,
		Exclude:        opts.Exclude,
	})
	if len(metricCols) == 0 {
		return nil, ErrNoMetrics
	}

	features, err := in.Standardized.Features(metricCols)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: build features")
	}
	if opts.Standardize {
		features = table.Standardize(features)
	}

	model, err := NewModel(opts.Family, ModelOptions{NInit: opts.NInit, MaxIter: opts.MaxIter})
	if err != nil {
		return nil, err
	}
	f, err := fit(ctx, model, features.Data, k, opts.RandomState)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: classify k=%d", k)
	}

	c := &Classification{
		K:         k,
		Family:    familyOf(model),
		Seed:      opts.RandomState,
		Metrics:   metricCols,
		Features:  features,
		Labels:    f.Labels,
		Sizes:     f.Sizes(),
		Centroids: f.Centroids,
		Inertia:   f.Inertia,
	}
	if opts.IDColumn != "" && in.Standardized.HasColumn(opts.IDColumn) {
		c.IDs, _ = in.Standardized.Column(opts.IDColumn)
	}

	if err := c.label(in.Merged, opts.IDColumn); err != nil {
		return nil, err
	}
	if in.Buildings != nil {
		c.joinGeometry(in.Buildings, opts.IDColumn, opts.GeometryColumn)
	}

	zap.L().Info("cluster: classification complete",
		zap.Int("clusters", k),
		zap.String("family", c.Family),
		zap.Int("rows", features.Rows()),
		zap.Ints("sizes", c.Sizes),
	)
	return c, nil
}

// label writes the cluster column onto a copy of merged.
func (c *Classification) label(merged *table.Table, idCol string) error {
	out := merged.Clone()
	values := make([]string, out.Len())

	if c.IDs != nil && out.HasColumn(idCol) {
		byID := make(map[string]int, len(c.IDs))
		for i, id := range c.IDs {
			if _, ok := byID[id]; !ok {
				byID[id] = c.Labels[i]
			}
		}
		ids, _ := out.Column(idCol)
		for i, id := range ids {
			if l, ok := byID[id]; ok {
				values[i] = strconv.Itoa(l)
			} else {
				c.Unmatched++
			}
		}
		if c.Unmatched > 0 {
			zap.L().Warn("cluster: merged rows without a label", zap.Int("unmatched", c.Unmatched))
		}
	} else {
		if out.Len() != len(c.Labels) {
			return eris.Wrapf(ErrRowMismatch, "cluster: merged has %d rows, standardized %d", out.Len(), len(c.Labels))
		}
		for i, l := range c.Labels {
			values[i] = strconv.Itoa(l)
		}
	}

	if err := out.SetColumn(ClusterColumn, values); err != nil {
		return eris.Wrap(err, "cluster: set labels")
	}
	c.Table = out
	return nil
}

// joinGeometry copies building geometry onto the labeled table. Rows keep
// any geometry they already carry when the building is missing.
func (c *Classification) joinGeometry(buildings *table.Table, idCol, geomCol string) {
	if !buildings.HasColumn(geomCol) {
		zap.L().Warn("cluster: buildings have no geometry column", zap.String("column", geomCol))
		return
	}

	geoms, _ := buildings.Column(geomCol)
	out := c.Table
	values := make([]string, out.Len())
	if out.HasColumn(geomCol) {
		values, _ = out.Column(geomCol)
	}

	switch {
	case idCol != "" && buildings.HasColumn(idCol) && out.HasColumn(idCol):
		byID, _ := buildings.Lookup(idCol)
		ids, _ := out.Column(idCol)
		missing := 0
		for i, id := range ids {
			if row, ok := byID[id]; ok {
				values[i] = geoms[row]
			} else {
				missing++
			}
		}
		if missing > 0 {
			zap.L().Warn("cluster: rows without building geometry", zap.Int("missing", missing))
		}
	case buildings.Len() == out.Len():
		copy(values, geoms)
	default:
		zap.L().Warn("cluster: cannot join building geometry",
			zap.Int("buildings", buildings.Len()),
			zap.Int("rows", out.Len()),
		)
		return
	}

	_ = out.SetColumn(geomCol, values)
}

// Members returns the feature rows of each cluster.
func (c *Classification) Members() [][]int {
	members := make([][]int, len(c.Sizes))
	for i, l := range c.Labels {
		members[l] = append(members[l], i)
	}
	return members
}

// Package export writes a classification and its interpretation to files
// and databases.
package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/db"
	"github.com/sells-group/urban-texture/internal/layer"
	"github.com/sells-group/urban-texture/internal/table"
)

// ErrNoGeometry is returned when a layer export finds no geometry column.
var ErrNoGeometry = eris.New("export: labeled table has no geometry column")

// Options names the outputs of an export run.
type Options struct {
	OutputDir      string
	CSVName        string
	LayerName      string
	ReportName     string
	GeometryColumn string
	SRID           int
}

// DefaultOptions returns the file names used when config leaves them unset.
func DefaultOptions() Options {
	return Options{
		OutputDir:      "./",
		CSVName:        "clusters.csv",
		LayerName:      "clusters",
		ReportName:     "report.xlsx",
		GeometryColumn: "geometry",
		SRID:           2039,
	}
}

// Path joins name onto the output directory unless name is already a path.
func (o Options) Path(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(o.OutputDir, name)
}

// ClustersCSV writes the labeled table to w.
func ClustersCSV(w io.Writer, c *cluster.Classification) error {
	if c == nil || c.Table == nil {
		return eris.New("export: nothing classified")
	}
	return table.WriteCSV(w, c.Table)
}

// ClustersCSVFile writes the labeled table to path, creating parent
// directories.
func ClustersCSVFile(path string, c *cluster.Classification) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := ClustersCSV(f, c); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}
	zap.L().Info("export: clusters csv written", zap.String("path", path), zap.Int("rows", c.Table.Len()))
	return nil
}

// ToLayer turns the labeled table into a named layer.
func ToLayer(c *cluster.Classification, name string, opts Options) (*layer.Layer, error) {
	if c == nil || c.Table == nil {
		return nil, eris.New("export: nothing classified")
	}
	if !c.Table.HasColumn(opts.GeometryColumn) {
		return nil, ErrNoGeometry
	}
	if name == "" {
		name = opts.LayerName
	}
	return layer.FromTable(c.Table, name, opts.GeometryColumn, opts.SRID)
}

// Layer writes the classification as layer name to target and returns
// where it went. target picks the format:
//
//	postgres://...   PostGIS table; a dotted name selects the schema
//	*.gpkg           GeoPackage feature table
//	anything else    directory holding <name>.shp and siblings
func Layer(ctx context.Context, target, name string, c *cluster.Classification, opts Options) (string, error) {
	if target == "" {
		return "", eris.New("export: layer target is empty")
	}

	schema := ""
	if db.IsURL(target) {
		if s, n, ok := strings.Cut(name, "."); ok {
			schema, name = s, n
		}
	}
	l, err := ToLayer(c, name, opts)
	if err != nil {
		return "", err
	}

	switch {
	case db.IsURL(target):
		pool, err := db.Connect(ctx, target)
		if err != nil {
			return "", err
		}
		defer pool.Close()
		if _, err := db.WriteLayer(ctx, pool, schema, l); err != nil {
			return "", err
		}
		if schema != "" {
			return schema + "." + l.Name, nil
		}
		return l.Name, nil

	case strings.EqualFold(filepath.Ext(target), ".gpkg"):
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", eris.Wrapf(err, "export: create %s", filepath.Dir(target))
		}
		if err := layer.WriteGeoPackage(ctx, target, l); err != nil {
			return "", err
		}
		return target + "#" + l.Name, nil

	default:
		return layer.WriteShapefile(target, l)
	}
}

// GeoJSON writes the classification as a FeatureCollection.
func GeoJSON(w io.Writer, c *cluster.Classification, opts Options) error {
	l, err := ToLayer(c, opts.LayerName, opts)
	if err != nil {
		return err
	}
	b, err := l.MarshalGeoJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return eris.Wrap(err, "export: write geojson")
}

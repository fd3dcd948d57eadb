// Package layer moves labeled records between tables and GIS formats:
// WKT in tables, shapefiles, GeoPackage and GeoJSON.
package layer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/table"
)

// Layer is a named set of features sharing attribute columns.
type Layer struct {
	Name string
	// Columns are the attribute columns; geometry is held apart.
	Columns []string
	Rows    [][]string
	// Geoms holds one geometry per row; nil marks a missing geometry.
	Geoms []geom.T
	SRID  int
}

// Len returns the feature count.
func (l *Layer) Len() int { return len(l.Rows) }

// FromTable builds a layer from a table whose geomCol holds WKT. Rows with
// blank or unparsable WKT keep a nil geometry.
func FromTable(t *table.Table, name, geomCol string, srid int) (*Layer, error) {
	gi := t.ColumnIndex(geomCol)
	if gi < 0 {
		return nil, eris.Errorf("layer: geometry column %q not found", geomCol)
	}

	l := &Layer{Name: name, SRID: srid}
	for i, c := range t.Columns {
		if i != gi {
			l.Columns = append(l.Columns, c)
		}
	}

	l.Rows = make([][]string, t.Len())
	l.Geoms = make([]geom.T, t.Len())
	bad := 0
	for r, row := range t.Rows {
		attrs := make([]string, 0, len(l.Columns))
		for i, v := range row {
			if i != gi {
				attrs = append(attrs, v)
			}
		}
		l.Rows[r] = attrs

		g, err := ParseWKT(row[gi])
		if err != nil {
			bad++
			continue
		}
		l.Geoms[r] = g
	}
	if bad > 0 {
		zap.L().Warn("layer: rows with invalid geometry", zap.String("layer", name), zap.Int("rows", bad))
	}
	return l, nil
}

// Table renders the layer as a table with a WKT geomCol appended.
func (l *Layer) Table(geomCol string) (*table.Table, error) {
	cols := append(append([]string(nil), l.Columns...), geomCol)
	rows := make([][]string, len(l.Rows))
	for r, attrs := range l.Rows {
		w, err := FormatWKT(l.Geoms[r])
		if err != nil {
			return nil, eris.Wrapf(err, "layer: row %d", r)
		}
		rows[r] = append(append(make([]string, 0, len(cols)), attrs...), w)
	}
	return table.New(cols, rows), nil
}

// Centers returns the bounding-box centre of every feature; ok is false
// where the geometry is missing.
func (l *Layer) Centers() (xs, ys []float64, ok []bool) {
	xs = make([]float64, len(l.Geoms))
	ys = make([]float64, len(l.Geoms))
	ok = make([]bool, len(l.Geoms))
	for i, g := range l.Geoms {
		xs[i], ys[i], ok[i] = Center(g)
	}
	return xs, ys, ok
}

// Load reads a buildings layer from a shapefile or a GeoPackage. For a
// GeoPackage an empty name selects the first feature table.
func Load(ctx context.Context, path, name string) (*Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path)
	case ".gpkg":
		return ReadGeoPackage(ctx, path, name)
	default:
		return nil, eris.Errorf("layer: unsupported layer source %q", path)
	}
}

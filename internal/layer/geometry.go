package layer

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"
)

// ParseWKT decodes a WKT string. Blank input yields a nil geometry.
func ParseWKT(s string) (geom.T, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "layer: parse wkt")
	}
	return g, nil
}

// FormatWKT encodes g as WKT. A nil geometry encodes as "".
func FormatWKT(g geom.T) (string, error) {
	if g == nil {
		return "", nil
	}
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "layer: format wkt")
	}
	return s, nil
}

// WithSRID returns g tagged with srid.
func WithSRID(g geom.T, srid int) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(srid)
	case *geom.LineString:
		return t.SetSRID(srid)
	case *geom.Polygon:
		return t.SetSRID(srid)
	case *geom.MultiPoint:
		return t.SetSRID(srid)
	case *geom.MultiLineString:
		return t.SetSRID(srid)
	case *geom.MultiPolygon:
		return t.SetSRID(srid)
	case *geom.GeometryCollection:
		return t.SetSRID(srid)
	default:
		return g
	}
}

// Center returns the centre of the bounding box of g.
func Center(g geom.T) (x, y float64, ok bool) {
	if g == nil {
		return 0, 0, false
	}
	b := g.Bounds()
	if b.IsEmpty() {
		return 0, 0, false
	}
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2, true
}

// TypeName returns the OGC type name of g in upper case.
func TypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "POINT"
	case *geom.LineString:
		return "LINESTRING"
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPoint:
		return "MULTIPOINT"
	case *geom.MultiLineString:
		return "MULTILINESTRING"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	default:
		return "GEOMETRY"
	}
}

// FromShape converts a go-shp shape. Lines become MultiLineStrings and
// polygons MultiPolygons with one polygon per ring. Unsupported or
// malformed shapes yield nil.
func FromShape(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	default:
		return nil
	}
}

func parts(numParts int32, starts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := starts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = starts[i+1]
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, points[j].X, points[j].Y)
		}
		out = append(out, flat)
	}
	return out
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)
	for i, flat := range parts(pl.NumParts, pl.Parts, pl.Points) {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("layer: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i, flat := range parts(p.NumParts, p.Parts, p.Points) {
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("layer: skipping malformed polygon ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("layer: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// ToShape converts g to a go-shp shape and its shapefile type.
func ToShape(g geom.T) (shp.Shape, shp.ShapeType, error) {
	switch t := g.(type) {
	case *geom.Point:
		return &shp.Point{X: t.X(), Y: t.Y()}, shp.POINT, nil
	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{points(t.Coords())}), shp.POLYLINE, nil
	case *geom.MultiLineString:
		var ps [][]shp.Point
		for i := 0; i < t.NumLineStrings(); i++ {
			ps = append(ps, points(t.LineString(i).Coords()))
		}
		return shp.NewPolyLine(ps), shp.POLYLINE, nil
	case *geom.Polygon:
		poly := shp.Polygon(*shp.NewPolyLine(rings(t)))
		return &poly, shp.POLYGON, nil
	case *geom.MultiPolygon:
		var ps [][]shp.Point
		for i := 0; i < t.NumPolygons(); i++ {
			ps = append(ps, rings(t.Polygon(i))...)
		}
		poly := shp.Polygon(*shp.NewPolyLine(ps))
		return &poly, shp.POLYGON, nil
	default:
		return nil, 0, eris.Errorf("layer: unsupported shapefile geometry %s", TypeName(g))
	}
}

func rings(p *geom.Polygon) [][]shp.Point {
	out := make([][]shp.Point, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		out = append(out, points(p.LinearRing(i).Coords()))
	}
	return out
}

func points(coords []geom.Coord) []shp.Point {
	out := make([]shp.Point, len(coords))
	for i, c := range coords {
		out[i] = shp.Point{X: c.X(), Y: c.Y()}
	}
	return out
}

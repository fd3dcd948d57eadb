package layer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	dbfNameLen  = 10
	dbfFieldMax = 254
)

// ReadShapefile reads every record of a shapefile into a layer named after
// the file.
func ReadShapefile(shpPath string) (*Layer, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	l := &Layer{Name: strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))}
	for _, f := range fields {
		l.Columns = append(l.Columns, strings.TrimRight(f.String(), "\x00"))
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		row := make([]string, len(fields))
		for i := range fields {
			row[i] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		g := FromShape(shape)
		if g == nil {
			skipped++
		}
		l.Rows = append(l.Rows, row)
		l.Geoms = append(l.Geoms, g)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "layer: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("layer: shapefile records without usable geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return l, nil
}

// WriteShapefile writes l as <dir>/<name>.shp with its .shx and .dbf
// siblings and returns the .shp path. The first geometry fixes the shape
// type; features without a geometry of that type are skipped. Attributes are
// stored as text, with field names cut to the ten characters dBase allows.
func WriteShapefile(dir string, l *Layer) (string, error) {
	var shapeType shp.ShapeType
	found := false
	for _, g := range l.Geoms {
		if g == nil {
			continue
		}
		_, st, err := ToShape(g)
		if err != nil {
			return "", err
		}
		shapeType, found = st, true
		break
	}
	if !found {
		return "", eris.Errorf("layer: %s has no geometry to write", l.Name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "layer: create %s", dir)
	}
	shpPath := filepath.Join(dir, l.Name+".shp")

	w, err := shp.Create(shpPath, shapeType)
	if err != nil {
		return "", eris.Wrapf(err, "layer: create shapefile %s", shpPath)
	}
	skipped, werr := writeShapes(w, l, shapeType)
	w.Close()
	if werr != nil {
		return "", werr
	}

	// go-shp names the attribute table "<base>dbf"; readers expect "<base>.dbf".
	base := strings.TrimSuffix(shpPath, ".shp")
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return "", eris.Wrapf(err, "layer: rename dbf for %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("layer: shapefile records without usable geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return shpPath, nil
}

func writeShapes(w *shp.Writer, l *Layer, shapeType shp.ShapeType) (int, error) {
	names := dbfNames(l.Columns)
	fields := make([]shp.Field, len(l.Columns))
	for j, name := range names {
		fields[j] = shp.StringField(name, fieldWidth(l.Rows, j))
	}
	if err := w.SetFields(fields); err != nil {
		return 0, eris.Wrap(err, "layer: set dbf fields")
	}

	skipped := 0
	for r, g := range l.Geoms {
		if g == nil {
			skipped++
			continue
		}
		shape, st, err := ToShape(g)
		if err != nil || st != shapeType {
			skipped++
			continue
		}
		idx := int(w.Write(shape))
		for j := range fields {
			v := l.Rows[r][j]
			if len(v) > int(fields[j].Size) {
				v = v[:fields[j].Size]
			}
			if err := w.WriteAttribute(idx, j, v); err != nil {
				return skipped, eris.Wrapf(err, "layer: write attribute %s row %d", names[j], r)
			}
		}
	}
	return skipped, nil
}

// dbfNames truncates names to dBase length, keeping them unique.
func dbfNames(cols []string) []string {
	out := make([]string, len(cols))
	used := make(map[string]bool, len(cols))
	for i, c := range cols {
		name := c
		if len(name) > dbfNameLen {
			name = name[:dbfNameLen]
		}
		for n := 1; used[name]; n++ {
			suffix := fmt.Sprintf("_%d", n)
			base := c
			if len(base) > dbfNameLen-len(suffix) {
				base = base[:dbfNameLen-len(suffix)]
			}
			name = base + suffix
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func fieldWidth(rows [][]string, j int) uint8 {
	width := 1
	for _, row := range rows {
		if n := len(row[j]); n > width {
			width = n
		}
	}
	return uint8(min(width, dbfFieldMax))
}

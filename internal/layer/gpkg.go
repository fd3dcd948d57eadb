package layer

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/urban-texture/internal/table"
)

// GeoPackage identifiers (OGC 12-128r18).
const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10200
	gpkgGeomColumn    = "geom"
)

const gpkgSchema = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]', 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');

CREATE TABLE IF NOT EXISTS gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
);
`

func openGeoPackage(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "layer: open geopackage")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "layer: exec %s", pragma)
		}
	}
	return db, nil
}

// WriteGeoPackage writes l as a feature table of the GeoPackage at path,
// creating the file when needed. An existing table of the same name is
// replaced. Columns whose values all parse as numbers are stored as REAL.
func WriteGeoPackage(ctx context.Context, path string, l *Layer) error {
	db, err := openGeoPackage(path)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id=%d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version=%d", gpkgUserVersion),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "layer: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, gpkgSchema); err != nil {
		return eris.Wrap(err, "layer: create geopackage schema")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "layer: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := writeFeatureTable(ctx, tx, l); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "layer: commit")
	}

	zap.L().Info("layer: geopackage written",
		zap.String("path", path),
		zap.String("layer", l.Name),
		zap.Int("features", l.Len()),
	)
	return nil
}

func writeFeatureTable(ctx context.Context, tx *sql.Tx, l *Layer) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, 'undefined', NULL)`,
		fmt.Sprintf("EPSG:%d", l.SRID), l.SRID, l.SRID,
	); err != nil {
		return eris.Wrap(err, "layer: register srs")
	}

	name := quoteIdent(l.Name)
	stmts := []string{
		"DROP TABLE IF EXISTS " + name,
		"DELETE FROM gpkg_geometry_columns WHERE table_name = " + quoteLiteral(l.Name),
		"DELETE FROM gpkg_contents WHERE table_name = " + quoteLiteral(l.Name),
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return eris.Wrapf(err, "layer: replace %s", l.Name)
		}
	}

	numeric := l.NumericColumns()
	defs := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", quoteIdent(gpkgGeomColumn) + " BLOB"}
	for j, c := range l.Columns {
		kind := "TEXT"
		if numeric[j] {
			kind = "REAL"
		}
		defs = append(defs, quoteIdent(c)+" "+kind)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return eris.Wrapf(err, "layer: create table %s", l.Name)
	}

	cols := []string{quoteIdent(gpkgGeomColumn)}
	for _, c := range l.Columns {
		cols = append(cols, quoteIdent(c))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return eris.Wrap(err, "layer: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	bounds := geom.NewBounds(geom.XY)
	typeName := ""
	for r, attrs := range l.Rows {
		args := make([]any, 0, len(cols))
		g := l.Geoms[r]
		if g == nil {
			args = append(args, nil)
		} else {
			blob, err := EncodeGeoPackage(g, l.SRID)
			if err != nil {
				return eris.Wrapf(err, "layer: encode row %d", r)
			}
			args = append(args, blob)
			bounds.Extend(g)
			switch t := TypeName(g); {
			case typeName == "":
				typeName = t
			case typeName != t:
				typeName = "GEOMETRY"
			}
		}
		for j, v := range attrs {
			args = append(args, cellValue(v, numeric[j]))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "layer: insert row %d", r)
		}
	}
	if typeName == "" {
		typeName = "GEOMETRY"
	}

	var minX, minY, maxX, maxY any
	if !bounds.IsEmpty() {
		minX, minY, maxX, maxY = bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Name, minX, minY, maxX, maxY, l.SRID,
	); err != nil {
		return eris.Wrap(err, "layer: register contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)`,
		l.Name, gpkgGeomColumn, typeName, l.SRID,
	); err != nil {
		return eris.Wrap(err, "layer: register geometry column")
	}
	return nil
}

// ReadGeoPackage loads a feature table. An empty name selects the first
// feature table listed in gpkg_contents.
func ReadGeoPackage(ctx context.Context, path, name string) (*Layer, error) {
	db, err := openGeoPackage(path)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck

	if name == "" {
		err := db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name LIMIT 1`,
		).Scan(&name)
		if err != nil {
			return nil, eris.Wrap(err, "layer: find feature table")
		}
	}

	var geomCol string
	var srid int
	err = db.QueryRowContext(ctx,
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, name,
	).Scan(&geomCol, &srid)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: geometry column of %s", name)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, eris.Wrapf(err, "layer: select %s", name)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "layer: columns")
	}

	l := &Layer{Name: name, SRID: srid}
	gi, fi := -1, -1
	for i, c := range cols {
		switch {
		case c == geomCol:
			gi = i
		case strings.EqualFold(c, "fid") && fi < 0:
			fi = i
		default:
			l.Columns = append(l.Columns, c)
		}
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "layer: scan")
		}

		attrs := make([]string, 0, len(l.Columns))
		var g geom.T
		for i, v := range vals {
			switch i {
			case gi:
				if blob, ok := v.([]byte); ok && len(blob) > 0 {
					if g, err = DecodeGeoPackage(blob); err != nil {
						return nil, eris.Wrapf(err, "layer: decode %s row %d", name, len(l.Rows))
					}
				}
			case fi:
			default:
				attrs = append(attrs, cellString(v))
			}
		}
		l.Rows = append(l.Rows, attrs)
		l.Geoms = append(l.Geoms, g)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "layer: iterate")
	}
	return l, nil
}

// EncodeGeoPackage wraps the little-endian WKB of g in a GeoPackage binary
// header without an envelope.
func EncodeGeoPackage(g geom.T, srid int) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "layer: encode wkb")
	}
	buf := make([]byte, 8, 8+len(body))
	buf[0], buf[1] = 'G', 'P'
	buf[2] = 0    // version 1
	buf[3] = 0x01 // little endian, no envelope
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(srid)))
	return append(buf, body...), nil
}

// DecodeGeoPackage parses a GeoPackage geometry blob.
func DecodeGeoPackage(blob []byte) (geom.T, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, eris.New("layer: not a geopackage geometry")
	}
	flags := blob[3]
	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, eris.Errorf("layer: invalid envelope flag %d", (flags>>1)&0x07)
	}
	start := 8 + envelope
	if len(blob) < start {
		return nil, eris.New("layer: truncated geopackage geometry")
	}
	if flags&0x10 != 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(blob[start:])
	if err != nil {
		return nil, eris.Wrap(err, "layer: decode wkb")
	}
	return g, nil
}

// NumericColumns reports, per attribute column, whether every non-missing
// value parses as a number and at least one value is present.
func (l *Layer) NumericColumns() []bool {
	out := make([]bool, len(l.Columns))
	for j := range l.Columns {
		numeric, seen := true, false
		for _, row := range l.Rows {
			v := row[j]
			if table.IsMissing(v) {
				continue
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				numeric = false
				break
			}
			seen = true
		}
		out[j] = numeric && seen
	}
	return out
}

func cellValue(v string, numeric bool) any {
	if !numeric {
		return v
	}
	if table.IsMissing(v) {
		return nil
	}
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

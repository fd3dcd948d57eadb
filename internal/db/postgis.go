package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/layer"
	"github.com/sells-group/urban-texture/internal/table"
)

const geomColumn = "geom"

// WriteLayer replaces the PostGIS table named after l with its features.
// Rows are COPYed as EWKB into a temp table, then converted with
// ST_GeomFromEWKB into the target. schema may be empty.
func WriteLayer(ctx context.Context, pool Pool, schema string, l *layer.Layer) (int64, error) {
	if l.Name == "" {
		return 0, eris.New("db: layer name is empty")
	}
	target := l.Name
	if schema != "" {
		target = schema + "." + l.Name
	}

	numeric := l.NumericColumns()
	defs := []string{
		"fid SERIAL PRIMARY KEY",
		fmt.Sprintf("%s geometry(Geometry, %d)", pgx.Identifier{geomColumn}.Sanitize(), l.SRID),
	}
	tempDefs := []string{pgx.Identifier{geomColumn}.Sanitize() + " BYTEA"}
	for j, c := range l.Columns {
		kind := "TEXT"
		if numeric[j] {
			kind = "DOUBLE PRECISION"
		}
		col := pgx.Identifier{c}.Sanitize() + " " + kind
		defs = append(defs, col)
		tempDefs = append(tempDefs, col)
	}
	columns := append([]string{geomColumn}, l.Columns...)

	rows, err := layerRows(l, numeric)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: layer: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tempTable := "_tmp_layer_" + strings.ReplaceAll(target, ".", "_")
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", sanitizeTable(target)),
		fmt.Sprintf("CREATE TABLE %s (%s)", sanitizeTable(target), strings.Join(defs, ", ")),
		fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP", pgx.Identifier{tempTable}.Sanitize(), strings.Join(tempDefs, ", ")),
	}
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return 0, eris.Wrapf(err, "db: layer: prepare %s", target)
		}
	}

	if _, err := CopyFrom(ctx, tx, tempTable, columns, rows); err != nil {
		return 0, err
	}

	selects := []string{fmt.Sprintf("ST_GeomFromEWKB(%s)", pgx.Identifier{geomColumn}.Sanitize())}
	for _, c := range l.Columns {
		selects = append(selects, pgx.Identifier{c}.Sanitize())
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s",
		sanitizeTable(target),
		quoteAndJoin(columns),
		strings.Join(selects, ", "),
		pgx.Identifier{tempTable}.Sanitize(),
	)
	tag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: layer: insert into %s", target)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: layer: commit tx")
	}

	zap.L().Info("db: layer written",
		zap.String("table", target),
		zap.Int64("rows", tag.RowsAffected()),
		zap.Int("srid", l.SRID),
	)
	return tag.RowsAffected(), nil
}

func layerRows(l *layer.Layer, numeric []bool) ([][]any, error) {
	rows := make([][]any, 0, l.Len())
	for r, attrs := range l.Rows {
		row := make([]any, 0, len(attrs)+1)
		if g := l.Geoms[r]; g != nil {
			b, err := ewkb.Marshal(layer.WithSRID(g, l.SRID), ewkb.NDR)
			if err != nil {
				return nil, eris.Wrapf(err, "db: layer: encode row %d", r)
			}
			row = append(row, b)
		} else {
			row = append(row, nil)
		}
		for j, v := range attrs {
			row = append(row, attrValue(v, numeric[j]))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func attrValue(v string, numeric bool) any {
	if !numeric {
		return v
	}
	if table.IsMissing(v) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return f
}

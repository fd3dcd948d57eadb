package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/urban-texture/internal/layer"
)

func clusterLayer() *layer.Layer {
	return &layer.Layer{
		Name:    "clusters",
		Columns: []string{"id", "cluster", "kind"},
		Rows: [][]string{
			{"1", "0", "house"},
			{"2", "", "shed"},
		},
		Geoms: []geom.T{
			geom.NewPointFlat(geom.XY, []float64{1, 2}),
			nil,
		},
		SRID: 2039,
	}
}

func TestWriteLayer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "urban"\."clusters"`).
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec(`CREATE TABLE "urban"\."clusters" \(fid SERIAL PRIMARY KEY, "geom" geometry\(Geometry, 2039\), "id" DOUBLE PRECISION, "cluster" DOUBLE PRECISION, "kind" TEXT\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_layer_urban_clusters"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_layer_urban_clusters"}, []string{"geom", "id", "cluster", "kind"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "urban"\."clusters" .* SELECT ST_GeomFromEWKB\("geom"\), "id", "cluster", "kind" FROM "_tmp_layer_urban_clusters"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := WriteLayer(context.Background(), mock, "urban", clusterLayer())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteLayer_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "clusters"`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec(`CREATE TABLE "clusters"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_layer_clusters"}, []string{"geom", "id", "cluster", "kind"}).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = WriteLayer(context.Background(), mock, "", clusterLayer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO _tmp_layer_clusters")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteLayer_EmptyName(t *testing.T) {
	l := clusterLayer()
	l.Name = ""
	_, err := WriteLayer(context.Background(), nil, "", l)
	assert.Error(t, err)
}

func TestLayerRows(t *testing.T) {
	l := clusterLayer()
	rows, err := layerRows(l, l.NumericColumns())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ewkb, ok := rows[0][0].([]byte)
	require.True(t, ok)
	assert.NotEmpty(t, ewkb)
	assert.Equal(t, []any{1.0, 0.0, "house"}, rows[0][1:])

	assert.Nil(t, rows[1][0])
	assert.Equal(t, []any{2.0, nil, "shed"}, rows[1][1:])
}

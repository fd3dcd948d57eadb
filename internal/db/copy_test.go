package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "clusters", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom(t *testing.T) {
	tests := []struct {
		name  string
		table string
		ident pgx.Identifier
	}{
		{name: "plain", table: "clusters", ident: pgx.Identifier{"clusters"}},
		{name: "schema", table: "urban.clusters", ident: pgx.Identifier{"urban", "clusters"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectCopyFrom(tt.ident, []string{"a", "b"}).WillReturnResult(3)

			rows := [][]any{{1, "x"}, {2, "y"}, {3, "z"}}
			n, err := CopyFrom(context.Background(), mock, tt.table, []string{"a", "b"}, rows)
			assert.NoError(t, err)
			assert.Equal(t, int64(3), n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"urban", "clusters"}, []string{"a"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, "urban.clusters", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO urban.clusters")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"urban.clusters", `"urban"."clusters"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"geom", "id", "cluster"`, quoteAndJoin([]string{"geom", "id", "cluster"}))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("postgres://localhost/urban"))
	assert.True(t, IsURL("postgresql://u:p@db:5432/urban"))
	assert.False(t, IsURL("out/clusters.gpkg"))
	assert.False(t, IsURL("out.gdb"))
}

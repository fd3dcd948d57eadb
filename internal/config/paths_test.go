package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPaths(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Paths
	}{
		{
			name: "all keys",
			content: `[Paths]
data_dir = /data/in
output_dir = /data/out
gdb_bld_path = /data/buildings.gpkg
`,
			want: Paths{DataDir: "/data/in", OutputDir: "/data/out", GDBBuildingsPath: "/data/buildings.gpkg"},
		},
		{
			name: "missing keys default",
			content: `[Paths]
output_dir = results
`,
			want: Paths{DataDir: "./", OutputDir: "results", GDBBuildingsPath: "./"},
		},
		{
			name:    "missing section",
			content: "[Other]\nkey = value\n",
			want:    Paths{DataDir: "./", OutputDir: "./", GDBBuildingsPath: "./"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.ini")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			got, err := LoadPaths(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestLoadPathsMissingFile(t *testing.T) {
	got, err := LoadPaths(filepath.Join(t.TempDir(), "absent.ini"))
	require.NoError(t, err)
	assert.Equal(t, Paths{DataDir: "./", OutputDir: "./", GDBBuildingsPath: "./"}, *got)
}

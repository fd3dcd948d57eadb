package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/urban-texture/internal/bundle"
	"github.com/sells-group/urban-texture/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "recommend", "classify", "analyze", "roads", "unpack"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "urbantex", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("paths"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestClassifyCommand_Flags(t *testing.T) {
	for _, name := range []string{"clusters", "zip", "data-dir", "buildings-layer", "output-dir", "layer", "geojson", "plot"} {
		assert.NotNil(t, classifyCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "k", classifyCmd.Flags().Lookup("clusters").Shorthand)
	assert.Equal(t, "json", analyzeCmd.Flags().Lookup("format").DefValue)
}

func TestRoadsCommand_RequiresBBox(t *testing.T) {
	flag := roadsCmd.Flags().Lookup("bbox")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Annotations, "cobra_annotation_bash_completion_one_required_flag")
}

// fixtureFiles holds three well separated groups of four buildings.
func fixtureFiles() map[string]string {
	centers := [][2]float64{{0, 0}, {10, 10}, {20, 0}}
	offsets := [][2]float64{{0, 0}, {0.2, 0.1}, {0.1, 0.3}, {0.3, 0.2}}
	var merged, std, bld strings.Builder
	merged.WriteString("uID,area,height\n")
	std.WriteString("uID,area,height\n")
	bld.WriteString("uID,geometry\n")
	id := 0
	for _, c := range centers {
		for _, o := range offsets {
			id++
			x, y := c[0]+o[0], c[1]+o[1]
			fmt.Fprintf(&merged, "%d,%g,%g\n", id, x*100, y*3)
			fmt.Fprintf(&std, "%d,%g,%g\n", id, x, y)
			fmt.Fprintf(&bld, "%d,\"POINT (%d %d)\"\n", id, id*10, id*20)
		}
	}
	return map[string]string{
		bundle.MergedFile:       merged.String(),
		bundle.PercentilesFile:  "uID,area_p\n1,0.5\n",
		bundle.StandardizedFile: std.String(),
		bundle.BuildingsFile:    bld.String(),
	}
}

func writeFixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range fixtureFiles() {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func writeFixtureZIP(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range fixtureFiles() {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	path := filepath.Join(t.TempDir(), "upload.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// execute runs the root command from an empty working directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	t.Setenv("URBANTEX_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	data := writeFixtureDir(t)
	out := t.TempDir()

	stdout, err := execute(t, "analyze", "--data-dir", data, "--output-dir", out, "-k", "3", "--format", "yaml", "--plots")
	require.NoError(t, err)
	assert.Contains(t, stdout, "k: 3")
	assert.Contains(t, stdout, "mean_vif:")

	for _, name := range []string{"clusters.csv", "report.xlsx", "flexibility_scores.csv", "flexibility.html", "vif.html", "importance.html", "silhouette.html"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
}

func TestClassifyCommand_ZIPAndLayer(t *testing.T) {
	archive := writeFixtureZIP(t)
	out := t.TempDir()
	gpkg := filepath.Join(out, "types.gpkg")

	stdout, err := execute(t, "classify", "--zip", archive, "--output-dir", out, "-k", "3", "--layer", gpkg, "--geojson")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"k": 3`)

	for _, p := range []string{gpkg, filepath.Join(out, "clusters.csv"), filepath.Join(out, "clusters.geojson")} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestClassifyCommand_ClusterBounds(t *testing.T) {
	data := writeFixtureDir(t)

	for _, k := range []string{"1", "21"} {
		_, err := execute(t, "classify", "--data-dir", data, "--output-dir", t.TempDir(), "-k", k)
		require.Error(t, err, "k=%s", k)
		assert.Contains(t, err.Error(), "must be between 2 and 20")
	}
}

func TestUnpackCommand(t *testing.T) {
	archive := writeFixtureZIP(t)
	dest := t.TempDir()

	stdout, err := execute(t, "unpack", "--zip", archive, "--dest", dest)
	require.NoError(t, err)
	for _, name := range bundle.RequiredFiles {
		assert.Contains(t, stdout, filepath.Join(dest, name))
	}
}

func TestDataFlags_BuildingsSource(t *testing.T) {
	orig := paths
	t.Cleanup(func() { paths = orig })

	tests := []struct {
		name   string
		flag   string
		config string
		want   string
	}{
		{"flag wins", "b.shp", "a.gpkg", "b.shp"},
		{"gpkg from config", "", "/data/a.gpkg", "/data/a.gpkg"},
		{"shapefile from config", "", "/data/a.SHP", "/data/a.SHP"},
		{"default dir ignored", "", "./", ""},
		{"gdb ignored", "", "/data/city.gdb", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths = &config.Paths{DataDir: "./", OutputDir: "./", GDBBuildingsPath: tt.config}
			f := dataFlags{buildingsLayer: tt.flag}
			assert.Equal(t, tt.want, f.buildingsSource())
		})
	}
}

func TestPrintAs(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	v := map[string]int{"k": 3}
	require.NoError(t, printAs(rootCmd, "yaml", v))
	assert.Equal(t, "k: 3\n", out.String())

	out.Reset()
	require.NoError(t, printAs(rootCmd, "json", v))
	assert.JSONEq(t, `{"k":3}`, out.String())

	assert.Error(t, printAs(rootCmd, "toml", v))
}

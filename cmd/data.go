package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/bundle"
	"github.com/sells-group/urban-texture/internal/pipeline"
)

// dataFlags selects where a one-shot command reads its bundle from.
type dataFlags struct {
	zipPath        string
	dataDir        string
	buildingsLayer string
	layerName      string
	outputDir      string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.zipPath, "zip", "", "ZIP archive with the four preprocessed CSVs")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "directory with the four preprocessed CSVs (default data_dir)")
	cmd.Flags().StringVar(&f.buildingsLayer, "buildings-layer", "", "shapefile or GeoPackage replacing buildings.csv (default gdb_bld_path)")
	cmd.Flags().StringVar(&f.layerName, "buildings-layer-name", "", "GeoPackage table to read (default first feature table)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "directory for written files (default output_dir)")
}

// output returns the directory results are written to.
func (f *dataFlags) output() string {
	if f.outputDir != "" {
		return f.outputDir
	}
	return paths.OutputDir
}

// buildingsSource returns the layer replacing buildings.csv, if any.
func (f *dataFlags) buildingsSource() string {
	if f.buildingsLayer != "" {
		return f.buildingsLayer
	}
	switch strings.ToLower(filepath.Ext(paths.GDBBuildingsPath)) {
	case ".shp", ".gpkg":
		return paths.GDBBuildingsPath
	}
	return ""
}

// load reads the bundle from the ZIP or the data directory and swaps in the
// buildings layer when one is configured.
func (f *dataFlags) load(ctx context.Context, p *pipeline.Pipeline) (*bundle.Bundle, error) {
	var (
		b   *bundle.Bundle
		err error
	)
	if f.zipPath != "" {
		b, err = p.LoadZIPFile(ctx, f.zipPath)
	} else {
		dir := f.dataDir
		if dir == "" {
			dir = paths.DataDir
		}
		b, err = p.LoadDir(ctx, dir)
	}
	if err != nil {
		return nil, err
	}

	if src := f.buildingsSource(); src != "" {
		if err := p.ReplaceBuildings(ctx, b, src, f.layerName); err != nil {
			return nil, eris.Wrap(err, "load buildings layer")
		}
	}

	zap.L().Info("data loaded",
		zap.Int("rows", b.Standardized.Len()),
		zap.Int("buildings", b.Buildings.Len()),
	)
	return b, nil
}

// writeFile creates path and its parent directory and hands the file to fn.
func writeFile(path string, fn func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeBytes writes data to path.
func writeBytes(path string, data []byte) error {
	return writeFile(path, func(f *os.File) error {
		_, err := f.Write(data)
		return eris.Wrapf(err, "write %s", path)
	})
}

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/export"
	"github.com/sells-group/urban-texture/internal/pipeline"
	"github.com/sells-group/urban-texture/internal/plot"
)

// classifyFlags are shared by classify and analyze.
type classifyFlags struct {
	data     dataFlags
	clusters int
	layer    string
	name     string
	geojson  bool
	plot     bool
}

func (f *classifyFlags) register(cmd *cobra.Command) {
	f.data.register(cmd)
	cmd.Flags().IntVarP(&f.clusters, "clusters", "k", 0, "number of clusters (default cluster.default_clusters)")
	cmd.Flags().StringVar(&f.layer, "layer", "", "also export the urban types to a .gpkg, a postgres:// URL or a shapefile directory")
	cmd.Flags().StringVar(&f.name, "layer-name", "", "name of the exported layer (default export.layer_name)")
	cmd.Flags().BoolVar(&f.geojson, "geojson", false, "write clusters.geojson to the output directory")
	cmd.Flags().BoolVar(&f.plot, "plot", false, "write clusters.html to the output directory")
}

// run loads the data, classifies it and writes the requested outputs.
func (f *classifyFlags) run(ctx context.Context, p *pipeline.Pipeline) (*cluster.Classification, error) {
	b, err := f.data.load(ctx, p)
	if err != nil {
		return nil, err
	}
	c, err := p.Classify(ctx, b, f.clusters)
	if err != nil {
		return nil, err
	}

	opts := p.ExportOptions(f.data.output())
	csvPath := opts.Path(opts.CSVName)
	if err := export.ClustersCSVFile(csvPath, c); err != nil {
		return nil, err
	}
	zap.L().Info("urban types written", zap.String("path", csvPath))

	if f.layer != "" {
		name := f.name
		if name == "" {
			name = opts.LayerName
		}
		written, err := export.Layer(ctx, f.layer, name, c, opts)
		if err != nil {
			return nil, err
		}
		zap.L().Info("layer exported", zap.String("target", written))
	}

	if f.geojson {
		path := filepath.Join(opts.OutputDir, "clusters.geojson")
		if err := writeFile(path, func(w *os.File) error { return export.GeoJSON(w, c, opts) }); err != nil {
			return nil, err
		}
	}

	if f.plot {
		page, err := plot.Clusters(c, opts.GeometryColumn)
		if err != nil {
			return nil, err
		}
		if err := writeBytes(filepath.Join(opts.OutputDir, "clusters.html"), page); err != nil {
			return nil, err
		}
	}
	return c, nil
}

var classifyOpts classifyFlags

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify buildings into urban types",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("classify"); err != nil {
			return err
		}
		c, err := classifyOpts.run(cmd.Context(), pipeline.New(cfg))
		if err != nil {
			return err
		}
		return printJSON(cmd, c)
	},
}

func init() {
	classifyOpts.register(classifyCmd)
	rootCmd.AddCommand(classifyCmd)
}

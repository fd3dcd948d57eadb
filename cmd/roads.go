package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/layer"
	"github.com/sells-group/urban-texture/internal/osm"
)

var (
	roadsBBox   string
	roadsFilter string
	roadsOut    string
	roadsGPKG   string
)

var roadsCmd = &cobra.Command{
	Use:   "roads",
	Short: "Download the street network of a bounding box from OpenStreetMap",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("roads"); err != nil {
			return err
		}
		bbox, err := osm.ParseBBox(roadsBBox)
		if err != nil {
			return err
		}

		retry := osm.DefaultRetry()
		retry.MaxAttempts = cfg.OSM.MaxAttempts
		loader := osm.NewLoader(cfg.OSM.Endpoint,
			time.Duration(cfg.OSM.TimeoutSecs)*time.Second,
			cfg.OSM.RequestsPerSecond,
		).WithRetry(retry)
		roads, err := loader.Roads(cmd.Context(), bbox, roadsFilter)
		if err != nil {
			return err
		}

		out := roadsOut
		if out == "" {
			out = filepath.Join(paths.OutputDir, "roads.geojson")
		}
		data, err := roads.MarshalGeoJSON()
		if err != nil {
			return err
		}
		if err := writeBytes(out, data); err != nil {
			return err
		}

		if roadsGPKG != "" {
			if err := layer.WriteGeoPackage(cmd.Context(), roadsGPKG, roads); err != nil {
				return err
			}
		}

		zap.L().Info("roads written",
			zap.Stringer("bbox", bbox),
			zap.Int("ways", roads.Len()),
			zap.String("path", out),
		)
		return nil
	},
}

func init() {
	roadsCmd.Flags().StringVar(&roadsBBox, "bbox", "", "south,west,north,east in degrees (required)")
	roadsCmd.Flags().StringVar(&roadsFilter, "filter", "", "highway tag regex, e.g. primary|secondary (default all)")
	roadsCmd.Flags().StringVar(&roadsOut, "out", "", "GeoJSON output file (default <output_dir>/roads.geojson)")
	roadsCmd.Flags().StringVar(&roadsGPKG, "gpkg", "", "also write the roads layer to this GeoPackage")
	_ = roadsCmd.MarkFlagRequired("bbox")
	rootCmd.AddCommand(roadsCmd)
}

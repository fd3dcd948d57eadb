package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/pipeline"
	"github.com/sells-group/urban-texture/internal/plot"
)

var (
	recommendData dataFlags
	recommendMin  int
	recommendMax  int
	recommendPlot bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend a cluster count from Davies-Bouldin scores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if recommendMin > 0 {
			cfg.Cluster.MinClusters = recommendMin
		}
		if recommendMax > 0 {
			cfg.Cluster.MaxClusters = recommendMax
		}
		if err := cfg.Validate("recommend"); err != nil {
			return err
		}

		ctx := cmd.Context()
		p := pipeline.New(cfg)
		b, err := recommendData.load(ctx, p)
		if err != nil {
			return err
		}

		rec, err := p.Recommend(ctx, b)
		if err != nil {
			return err
		}

		if recommendPlot {
			page, err := plot.Recommendation(rec)
			if err != nil {
				return err
			}
			path := filepath.Join(recommendData.output(), "recommendation.html")
			if err := writeBytes(path, page); err != nil {
				return err
			}
			zap.L().Info("recommendation plot written", zap.String("path", path))
		}

		return printJSON(cmd, rec)
	},
}

func init() {
	recommendData.register(recommendCmd)
	recommendCmd.Flags().IntVar(&recommendMin, "min", 0, "smallest cluster count to try (default from config)")
	recommendCmd.Flags().IntVar(&recommendMax, "max", 0, "largest cluster count to try (default from config)")
	recommendCmd.Flags().BoolVar(&recommendPlot, "plot", false, "write recommendation.html to the output directory")
	rootCmd.AddCommand(recommendCmd)
}

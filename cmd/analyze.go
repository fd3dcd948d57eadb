package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/export"
	"github.com/sells-group/urban-texture/internal/pipeline"
	"github.com/sells-group/urban-texture/internal/plot"
)

var (
	analyzeOpts   classifyFlags
	analyzeFormat string
	analyzePlots  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify and interpret the urban types",
	Long:  "Classifies the data, then reports flexibility scores, VIF, outliers, basic statistics and feature importance per cluster.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()
		p := pipeline.New(cfg)

		c, err := analyzeOpts.run(ctx, p)
		if err != nil {
			return err
		}
		r, err := p.Analyze(ctx, c)
		if err != nil {
			return err
		}

		opts := p.ExportOptions(analyzeOpts.data.output())
		reportPath := opts.Path(opts.ReportName)
		if err := export.ReportFile(reportPath, c, r); err != nil {
			return err
		}
		flexPath := filepath.Join(opts.OutputDir, "flexibility_scores.csv")
		if err := writeFile(flexPath, func(f *os.File) error { return export.FlexibilityCSV(f, r) }); err != nil {
			return err
		}
		zap.L().Info("analysis written",
			zap.String("report", reportPath),
			zap.String("flexibility", flexPath),
		)

		if analyzePlots {
			for _, name := range []string{plot.NameFlexibility, plot.NameVIF, plot.NameImportance, plot.NameSilhouette} {
				page, err := plot.Analysis(name, r)
				if err != nil {
					return err
				}
				if err := writeBytes(filepath.Join(opts.OutputDir, name+".html"), page); err != nil {
					return err
				}
			}
		}

		return printAs(cmd, analyzeFormat, r)
	},
}

func init() {
	analyzeOpts.register(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "output format: json or yaml")
	analyzeCmd.Flags().BoolVar(&analyzePlots, "plots", false, "write the analysis plots to the output directory")
	rootCmd.AddCommand(analyzeCmd)
}

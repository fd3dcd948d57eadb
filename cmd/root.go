package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/config"
)

var (
	cfg   *config.Config
	paths *config.Paths

	pathsFile string
)

var rootCmd = &cobra.Command{
	Use:   "urbantex",
	Short: "Morphological classification of urban texture",
	Long:  "Clusters building-level morphometric metrics into urban types, recommends a cluster count, interprets the clusters and exports the results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		file := pathsFile
		if file == "" {
			file = cfg.PathsFile
		}
		p, err := config.LoadPaths(file)
		if err != nil {
			return fmt.Errorf("load paths: %w", err)
		}
		paths = p

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pathsFile, "paths", "", "INI file with a [Paths] section (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

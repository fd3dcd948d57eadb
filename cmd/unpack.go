package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/bundle"
)

var (
	unpackZIP  string
	unpackDest string
)

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Extract an upload archive into the data directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dest := unpackDest
		if dest == "" {
			dest = paths.DataDir
		}
		files, err := bundle.Extract(unpackZIP, dest)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		zap.L().Info("archive extracted", zap.String("dest", dest), zap.Int("files", len(files)))
		return nil
	},
}

func init() {
	unpackCmd.Flags().StringVar(&unpackZIP, "zip", "", "archive to extract (required)")
	unpackCmd.Flags().StringVar(&unpackDest, "dest", "", "destination directory (default data_dir)")
	_ = unpackCmd.MarkFlagRequired("zip")
	rootCmd.AddCommand(unpackCmd)
}

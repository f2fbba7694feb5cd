package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tanq16/melo/internal/engine"
	"github.com/tanq16/melo/internal/output"
)

func newDownloadFileCmd() *cobra.Command {
	var url string
	var maxThreads int

	cmd := &cobra.Command{
		Use:   "download-file --url URL [--target-dir DIR]",
		Short: "Download a single file from an https or s3 url",
		Run: func(cmd *cobra.Command, args []string) {
			if maxThreads < 2 {
				maxThreads = 2
			}
			display := output.NewManager(0)
			opts := engine.Options{
				Client:           newHTTPClient(),
				MaxThreads:       maxThreads,
				MaxParallelFiles: 1,
				Display:          display,
			}
			runWithDisplay(cmd.Context(), display, func(ctx context.Context) error {
				return engine.FetchFile(ctx, url, targetDir, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "URL to download (https:// or s3://)")
	cmd.MarkFlagRequired("url")
	cmd.Flags().IntVar(&maxThreads, "max-threads", 2, "Download threads for chunked transfers (minimum 2)")
	return cmd
}

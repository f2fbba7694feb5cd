package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/tanq16/melo/internal/engine"
	"github.com/tanq16/melo/internal/output"
	"github.com/tanq16/melo/internal/planner"
)

func newDownloadMetalinkCmd() *cobra.Command {
	var metalinkFile string
	var maxThreadsPerFile int
	var maxParallelFiles int
	var verifyChunks bool

	cmd := &cobra.Command{
		Use:   "download-metalink --metalink-file FILE [--target-dir DIR]",
		Short: "Download every file in a metalink, resuming valid data on disk",
		Run: func(cmd *cobra.Command, args []string) {
			if maxThreadsPerFile < 2 {
				maxThreadsPerFile = 2
			}
			if maxParallelFiles < 1 {
				maxParallelFiles = 1
			}
			full, err := planner.Load(metalinkFile, targetDir)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			min, err := full.Minimize()
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(min.Files) == 0 {
				output.PrintSuccess("Everything is already on disk, nothing to download")
				return
			}
			display := output.NewManager(min.TotalSize)
			opts := engine.Options{
				Client:           newHTTPClient(),
				MaxThreads:       maxThreadsPerFile,
				MaxParallelFiles: maxParallelFiles,
				VerifyChunks:     verifyChunks,
				Display:          display,
			}
			runWithDisplay(cmd.Context(), display, func(ctx context.Context) error {
				return engine.Run(ctx, min, targetDir, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&metalinkFile, "metalink-file", "m", "", "Path to the metalink document")
	cmd.MarkFlagRequired("metalink-file")
	cmd.Flags().IntVar(&maxThreadsPerFile, "max-threads-per-file", 2, "Download threads per file (minimum 2)")
	cmd.Flags().IntVar(&maxParallelFiles, "max-parallel-files", 2, "Files downloaded in parallel")
	cmd.Flags().BoolVarP(&verifyChunks, "verify-chunk-checksums", "v", false, "Verify chunk digests while downloading")
	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanq16/melo/internal/output"
	"github.com/tanq16/melo/internal/utils"
)

var (
	targetDir string
	userAgent string
	limitRate int64
	debug     bool
)

var MeloVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "melo",
	Short:   "Melo is a resumable metalink download manager",
	Version: MeloVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if userAgent == "" {
			userAgent = "melo/" + MeloVersion
		} else if userAgent == "random" {
			userAgent = utils.GetRandomUserAgent()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&targetDir, "target-dir", "t", ".", "Directory downloads are written to")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", "", "User agent ('random' picks a browser one)")
	rootCmd.PersistentFlags().Int64Var(&limitRate, "limit-rate", 0, "Bandwidth cap in bytes per second (0 disables)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(newDownloadFileCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newDownloadMetalinkCmd())
}

func newHTTPClient() *utils.MeloHTTPClient {
	return utils.NewMeloHTTPClient(utils.HTTPClientConfig{
		UserAgent: userAgent,
		RateLimit: limitRate,
	})
}

// runWithDisplay drives the progress display around a download and
// turns the first unrecovered error into exit status 1. The in-place
// display stays off in debug mode so log lines remain readable.
func runWithDisplay(ctx context.Context, display *output.Manager, fn func(context.Context) error) {
	if !debug {
		display.StartDisplay()
	}
	err := fn(ctx)
	if !debug {
		display.StopDisplay()
	}
	display.ShowSummary()
	if err != nil {
		fmt.Println()
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tanq16/melo/internal/output"
	"github.com/tanq16/melo/internal/planner"
	"github.com/tanq16/melo/internal/utils"
)

func newPlanCmd() *cobra.Command {
	var metalinkFile string

	cmd := &cobra.Command{
		Use:   "plan --metalink-file FILE [--target-dir DIR]",
		Short: "Show the download plan for a metalink without downloading",
		Run: func(cmd *cobra.Command, args []string) {
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
			output.PrintHeader(fmt.Sprintf("Download plan: %d files, %s", len(full.Files), utils.FormatBytes(uint64(full.TotalSize))))
			renderPlan(full)
			fmt.Println()
			output.PrintHeader(fmt.Sprintf("After resume check: %d files, %s", len(min.Files), utils.FormatBytes(uint64(min.TotalSize))))
			renderPlan(min)
		},
	}

	cmd.Flags().StringVarP(&metalinkFile, "metalink-file", "m", "", "Path to the metalink document")
	cmd.MarkFlagRequired("metalink-file")
	return cmd
}

func renderPlan(p *planner.Plan) {
	data, err := yaml.Marshal(p)
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
	fmt.Print(string(data))
}

package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
)

var facesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full pipeline pass: assign, then cluster the rest",
	Long: `Run a full pipeline pass over the unassigned faces.

The assigner matches each face against known-person anchors first:
confident matches are assigned, borderline matches become pending
suggestions. Whatever remains is grouped into unknown clusters;
faces in no dense region stay unassigned for the next pass.

Examples:
  # Whole library
  face-engine faces run

  # A few images only
  face-engine faces run --images abc123,def456`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, engine.ModeFull)
	},
}

var facesAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Run the assigner phase only",
	Long: `Match unassigned faces against known-person anchors without
clustering the leftovers. Confident matches are assigned, borderline
matches become pending suggestions, the rest stay untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, engine.ModeAssign)
	},
}

func init() {
	facesCmd.AddCommand(facesRunCmd)
	facesCmd.AddCommand(facesAssignCmd)

	for _, c := range []*cobra.Command{facesRunCmd, facesAssignCmd} {
		c.Flags().StringSlice("images", nil, "Restrict the pass to these image UIDs (default: whole library)")
		c.Flags().Int("concurrency", 0, "Assigner worker pool size (0 = default)")
	}
}

// pipelineProgressBar builds the progress bar for a pipeline pass.
func pipelineProgressBar(total int, phase string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(phase),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func runPipeline(cmd *cobra.Command, mode engine.RunMode) error {
	app, err := setupApp()
	if err != nil {
		return err
	}
	defer app.Close()

	var bar *progressbar.ProgressBar
	lastPhase := ""

	result, err := app.engine.Run(context.Background(), engine.RunOptions{
		ImageScope:  mustGetStringSlice(cmd, "images"),
		Mode:        mode,
		Concurrency: mustGetInt(cmd, "concurrency"),
		OnProgress: func(info engine.ProgressInfo) {
			if info.Phase != lastPhase {
				if bar != nil {
					_ = bar.Finish()
					fmt.Println()
				}
				bar = pipelineProgressBar(info.Total, info.Phase)
				lastPhase = info.Phase
			}
			if bar != nil {
				_ = bar.Set(min(info.Current, info.Total))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("pipeline pass: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	fmt.Printf("Processed %d faces\n", result.Processed)
	fmt.Printf("  Auto-assigned: %d\n", result.AutoAssigned)
	fmt.Printf("  Suggested:     %d\n", result.Suggested)
	if mode == engine.ModeFull {
		fmt.Printf("  Clustered:     %d (in %d clusters)\n", result.Clustered, len(result.Clusters))
	}
	fmt.Printf("  Noise:         %d\n", result.Noise)
	if result.Failed > 0 {
		fmt.Printf("  Failed:        %d (missing or unusable embeddings)\n", result.Failed)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
)

var findmoreCmd = &cobra.Command{
	Use:   "findmore <person-id>",
	Short: "Search the face index for more faces of a person",
	Long: `Search the vector index for unassigned faces resembling a person and
create pending suggestions for them. Anchors come from the person's
labeled faces (prototype mode) or their centroid (centroid mode);
auto picks based on how many labeled faces the person has.`,
	Args: cobra.ExactArgs(1),
	RunE: runFindMore,
}

func init() {
	rootCmd.AddCommand(findmoreCmd)

	findmoreCmd.Flags().String("mode", "auto", "Search mode (auto, prototype, centroid)")
}

func runFindMore(cmd *cobra.Command, args []string) error {
	personID, err := parseIDArg(args[0], "person id")
	if err != nil {
		return err
	}

	mode := engine.SearchMode(mustGetString(cmd, "mode"))
	switch mode {
	case engine.SearchModeAuto, engine.SearchModePrototype, engine.SearchModeCentroid:
	default:
		return fmt.Errorf("invalid mode %q (expected auto, prototype or centroid)", mode)
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.engine.FindMore(context.Background(), personID, mode)
	if err != nil {
		return fmt.Errorf("find more for person %d: %w", personID, err)
	}

	fmt.Printf("Searched with %d %s anchor(s)\n", result.Anchors, result.Mode)
	fmt.Printf("Candidates examined: %d\n", result.Candidates)
	fmt.Printf("Suggestions created: %d\n", result.Created)
	return nil
}

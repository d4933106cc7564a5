package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var suggestionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending suggestions grouped by person",
	Long: `List pending suggestions grouped by person, busiest person first.
Pagination is two-dimensional: --groups pages over persons, --per-group
bounds the suggestions shown for each person.`,
	RunE: runSuggestionsList,
}

func init() {
	suggestionsCmd.AddCommand(suggestionsListCmd)

	suggestionsListCmd.Flags().Int("groups", 10, "Number of person groups to show")
	suggestionsListCmd.Flags().Int("group-offset", 0, "Person groups to skip")
	suggestionsListCmd.Flags().Int("per-group", 20, "Suggestions to show per person")
	suggestionsListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSuggestionsList(cmd *cobra.Command, args []string) error {
	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	groups, err := app.engine.ListSuggestions(context.Background(),
		mustGetInt(cmd, "groups"),
		mustGetInt(cmd, "group-offset"),
		mustGetInt(cmd, "per-group"))
	if err != nil {
		return fmt.Errorf("listing suggestions: %w", err)
	}

	if mustGetBool(cmd, "json") {
		type itemJSON struct {
			ID     int64   `json:"id"`
			FaceID int64   `json:"face_id"`
			Score  float64 `json:"score"`
		}
		type groupJSON struct {
			PersonID     int64      `json:"person_id"`
			PersonName   string     `json:"person_name"`
			PendingCount int        `json:"pending_count"`
			Suggestions  []itemJSON `json:"suggestions"`
		}
		out := make([]groupJSON, 0, len(groups))
		for _, g := range groups {
			gj := groupJSON{PersonID: g.Person.ID, PersonName: g.Person.Name, PendingCount: g.PendingCount}
			for _, s := range g.Suggestions {
				gj.Suggestions = append(gj.Suggestions, itemJSON{ID: s.ID, FaceID: s.FaceID, Score: s.Score})
			}
			out = append(out, gj)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(groups) == 0 {
		fmt.Println("No pending suggestions")
		return nil
	}

	for _, g := range groups {
		fmt.Printf("%s (%d pending)\n", g.Person.Name, g.PendingCount)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  SUGGESTION\tFACE\tSCORE\tCONFIDENCE")
		for _, s := range g.Suggestions {
			fmt.Fprintf(w, "  %d\t%d\t%.3f\t%.3f\n", s.ID, s.FaceID, s.Score, s.Confidence)
		}
		w.Flush()
	}
	return nil
}

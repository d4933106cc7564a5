package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var suggestionsRejectCmd = &cobra.Command{
	Use:   "reject <suggestion-id>",
	Short: "Reject a pending suggestion",
	Long:  `Reject a pending suggestion. The face stays unassigned.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggestionsReject,
}

func init() {
	suggestionsCmd.AddCommand(suggestionsRejectCmd)
}

func runSuggestionsReject(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0], "suggestion id")
	if err != nil {
		return err
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.engine.Reject(context.Background(), id); err != nil {
		return fmt.Errorf("rejecting suggestion %d: %w", id, err)
	}

	fmt.Printf("Rejected suggestion %d\n", id)
	return nil
}

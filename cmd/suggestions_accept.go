package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

var suggestionsAcceptCmd = &cobra.Command{
	Use:   "accept <suggestion-id>",
	Short: "Accept a pending suggestion",
	Long:  `Accept a pending suggestion, assigning the face to the suggested person.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggestionsAccept,
}

func init() {
	suggestionsCmd.AddCommand(suggestionsAcceptCmd)
}

func runSuggestionsAccept(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0], "suggestion id")
	if err != nil {
		return err
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	accepted, err := app.engine.Accept(context.Background(), id)
	if err != nil && !store.IsDesync(err) {
		return fmt.Errorf("accepting suggestion %d: %w", id, err)
	}

	fmt.Printf("Assigned face %d to person %d\n", accepted.FaceID, accepted.PersonID)
	if store.IsDesync(err) {
		fmt.Println("Warning: vector index update lagged; run a full pass to resync")
	}
	return nil
}

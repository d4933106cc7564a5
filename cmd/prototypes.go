package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

var prototypesCmd = &cobra.Command{
	Use:   "prototypes",
	Short: "Manage person prototype anchors",
	Long: `Commands for inspecting and managing prototype anchors. Prototypes
are the representative face embeddings a person is matched against;
pinned prototypes survive recomputation.`,
}

var prototypesListCmd = &cobra.Command{
	Use:   "list <person-id>",
	Short: "List a person's prototypes",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrototypesList,
}

var prototypesRecomputeCmd = &cobra.Command{
	Use:   "recompute <person-id>",
	Short: "Recompute a person's prototypes",
	Long: `Recompute a person's prototypes from their labeled faces. Pinned
prototypes are kept; unpinned ones are replaced by a fresh selection.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrototypesRecompute,
}

var prototypesPinCmd = &cobra.Command{
	Use:   "pin <prototype-id>",
	Short: "Pin a prototype",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrototypesPin,
}

var prototypesUnpinCmd = &cobra.Command{
	Use:   "unpin <prototype-id>",
	Short: "Unpin a prototype",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrototypesUnpin,
}

func init() {
	rootCmd.AddCommand(prototypesCmd)
	prototypesCmd.AddCommand(prototypesListCmd)
	prototypesCmd.AddCommand(prototypesRecomputeCmd)
	prototypesCmd.AddCommand(prototypesPinCmd)
	prototypesCmd.AddCommand(prototypesUnpinCmd)
}

func parseIDArg(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

func printPrototypes(prototypes []store.Prototype) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFACE\tROLE\tPINNED\tQUALITY")
	for _, p := range prototypes {
		fmt.Fprintf(w, "%d\t%d\t%s\t%t\t%.3f\n", p.ID, p.FaceID, p.Role, p.Pinned, p.Quality)
	}
	w.Flush()
}

func runPrototypesList(cmd *cobra.Command, args []string) error {
	personID, err := parseIDArg(args[0], "person id")
	if err != nil {
		return err
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	if _, err := app.stores.Persons.GetPerson(ctx, personID); err != nil {
		return fmt.Errorf("person %d: %w", personID, err)
	}
	prototypes, err := app.stores.Prototypes.ListPrototypes(ctx, personID)
	if err != nil {
		return fmt.Errorf("listing prototypes: %w", err)
	}

	if len(prototypes) == 0 {
		fmt.Printf("Person %d has no prototypes\n", personID)
		return nil
	}
	printPrototypes(prototypes)
	return nil
}

func runPrototypesRecompute(cmd *cobra.Command, args []string) error {
	personID, err := parseIDArg(args[0], "person id")
	if err != nil {
		return err
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	prototypes, err := app.engine.RecomputePrototypes(context.Background(), personID)
	if err != nil && !store.IsDesync(err) {
		return fmt.Errorf("recomputing prototypes for person %d: %w", personID, err)
	}

	fmt.Printf("Selected %d prototype(s) for person %d\n", len(prototypes), personID)
	printPrototypes(prototypes)
	if store.IsDesync(err) {
		fmt.Println("Warning: vector index update lagged; run a full pass to resync")
	}
	return nil
}

func runPrototypesPin(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0], "prototype id")
	if err != nil {
		return err
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.engine.PinPrototype(context.Background(), id); err != nil {
		return fmt.Errorf("pinning prototype %d: %w", id, err)
	}

	fmt.Printf("Pinned prototype %d\n", id)
	return nil
}

func runPrototypesUnpin(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0], "prototype id")
	if err != nil {
		return err
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.engine.UnpinPrototype(context.Background(), id); err != nil {
		return fmt.Errorf("unpinning prototype %d: %w", id, err)
	}

	fmt.Printf("Unpinned prototype %d\n", id)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Manage persons",
	Long:  `Commands for creating, listing and merging persons.`,
}

var personsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonsCreate,
}

var personsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persons",
	RunE:  runPersonsList,
}

var personsMergeCmd = &cobra.Command{
	Use:   "merge <from-id> <into-id>",
	Short: "Merge one person into another",
	Long: `Merge one person into another. Faces and prototypes move to the
surviving person; pending suggestions for the merged person expire.`,
	Args: cobra.ExactArgs(2),
	RunE: runPersonsMerge,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsCreateCmd)
	personsCmd.AddCommand(personsListCmd)
	personsCmd.AddCommand(personsMergeCmd)
}

func runPersonsCreate(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return fmt.Errorf("person name must not be empty")
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	person, err := app.stores.Persons.CreatePerson(context.Background(), name)
	if err != nil {
		return fmt.Errorf("creating person %q: %w", name, err)
	}

	fmt.Printf("Created person %d (%s)\n", person.ID, person.Name)
	return nil
}

func runPersonsList(cmd *cobra.Command, args []string) error {
	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	persons, err := app.stores.Persons.ListPersons(context.Background())
	if err != nil {
		return fmt.Errorf("listing persons: %w", err)
	}

	if len(persons) == 0 {
		fmt.Println("No persons")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS")
	for _, p := range persons {
		status := string(p.Status)
		if p.MergedInto != nil {
			status = fmt.Sprintf("%s into %d", p.Status, *p.MergedInto)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.Name, status)
	}
	return w.Flush()
}

func runPersonsMerge(cmd *cobra.Command, args []string) error {
	fromID, err := parseIDArg(args[0], "person id")
	if err != nil {
		return err
	}
	intoID, err := parseIDArg(args[1], "person id")
	if err != nil {
		return err
	}

	app, err := setupAppWithLogger(quietLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.engine.MergePersons(context.Background(), fromID, intoID)
	if err != nil {
		return fmt.Errorf("merging person %d into %d: %w", fromID, intoID, err)
	}

	fmt.Printf("Merged person %d into %d\n", result.FromPersonID, result.IntoPersonID)
	fmt.Printf("Faces moved: %d\n", result.MovedFaces)
	fmt.Printf("Suggestions expired: %d\n", result.ExpiredSuggestions)
	return nil
}

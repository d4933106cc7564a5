package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var facesClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster the unassigned faces without running the assigner",
	Long: `Group the currently unassigned faces into unknown clusters with
density-based clustering. Faces in no dense region stay unassigned.
Prior clusters over the same faces are replaced.`,
	RunE: runFacesCluster,
}

func init() {
	facesCmd.AddCommand(facesClusterCmd)

	facesClusterCmd.Flags().StringSlice("images", nil, "Restrict clustering to these image UIDs (default: whole library)")
}

func runFacesCluster(cmd *cobra.Command, args []string) error {
	app, err := setupApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	settings, err := app.stores.Settings.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	faces, err := app.stores.Faces.ListUnassigned(ctx, mustGetStringSlice(cmd, "images"))
	if err != nil {
		return fmt.Errorf("listing unassigned faces: %w", err)
	}
	if len(faces) == 0 {
		fmt.Println("No unassigned faces to cluster")
		return nil
	}

	fmt.Printf("Clustering %d unassigned faces...\n", len(faces))
	result, err := app.engine.ClusterUnassigned(ctx, faces, settings)
	if err != nil {
		return fmt.Errorf("clustering: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLUSTER\tFACES\tCOHESION")
	for _, c := range result.Clusters {
		fmt.Fprintf(w, "%d\t%d\t%.3f\n", c.ID, c.FaceCount, c.Cohesion)
	}
	w.Flush()

	fmt.Printf("%d clusters, %d noise faces", len(result.Clusters), len(result.Noise))
	if len(result.Failed) > 0 {
		fmt.Printf(", %d failed", len(result.Failed))
	}
	fmt.Println()
	return nil
}

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MacPhobos/image-search-sub004/internal/embedding"
	"github.com/MacPhobos/image-search-sub004/internal/facematch"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

var facesIngestCmd = &cobra.Command{
	Use:   "ingest <face-crop>...",
	Short: "Ingest face crops: embed them and register the faces",
	Long: `Ingest pre-cropped face images into the engine.

Each crop is sent to the embedding service, stored as a face record,
and indexed in the vector store as an unassigned face. The image UID
defaults to the file name without extension.

Examples:
  # Ingest crops for one photo
  face-engine faces ingest --image abc123 crops/abc123-*.jpg

  # Ingest a directory of crops, one photo per file
  face-engine faces ingest crops/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFacesIngest,
}

func init() {
	facesCmd.AddCommand(facesIngestCmd)

	facesIngestCmd.Flags().String("image", "", "Image UID owning the crops (default: file name without extension)")
	facesIngestCmd.Flags().Float64("det-score", 1.0, "Detection confidence to record for the crops")
}

// ingestOne embeds a single crop and registers it as a face.
func ingestOne(ctx context.Context, app *appContext, embedder *embedding.Client, path, imageUID string, detScore float64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	bbox := []float64{0, 0, float64(cfg.Width), float64(cfg.Height)}

	vector, err := embedder.Embed(ctx, data)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", path, err)
	}

	uid := imageUID
	if uid == "" {
		uid = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	face, err := app.stores.Faces.CreateFace(ctx, store.Face{
		ImageUID:    uid,
		BBox:        bbox,
		DetScore:    detScore,
		Quality:     facematch.QualityScore(detScore, bbox, cfg.Width),
		EmbeddingID: uuid.New().String(),
	})
	if err != nil {
		return fmt.Errorf("storing face for %s: %w", path, err)
	}

	err = app.engine.IndexFace(ctx, face, vector)
	if err != nil {
		return fmt.Errorf("indexing face %d: %w", face.ID, err)
	}
	return nil
}

func runFacesIngest(cmd *cobra.Command, args []string) error {
	app, err := setupApp()
	if err != nil {
		return err
	}
	defer app.Close()

	embedder := embedding.NewClient(app.cfg.Embedding.URL)
	imageUID := mustGetString(cmd, "image")
	detScore := mustGetFloat64(cmd, "det-score")

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("Ingesting faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("crops"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	ctx := context.Background()
	ingested := 0
	var failures []string
	for _, path := range args {
		err := ingestOne(ctx, app, embedder, path, imageUID, detScore)
		switch {
		case err == nil:
			ingested++
		case store.IsDesync(err):
			// Face row committed; only the index write lagged.
			ingested++
			failures = append(failures, err.Error())
		default:
			failures = append(failures, err.Error())
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()

	fmt.Printf("Ingested %d of %d crops\n", ingested, len(args))
	for _, f := range failures {
		fmt.Printf("  Warning: %s\n", f)
	}
	return nil
}

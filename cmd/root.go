package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MacPhobos/image-search-sub004/internal/config"
	"github.com/MacPhobos/image-search-sub004/internal/engine"
	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/store/postgres"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

var rootCmd = &cobra.Command{
	Use:   "face-engine",
	Short: "Face assignment and suggestion engine for a photo library",
	Long: `Face Engine matches detected faces in a photo library against known
persons, proposes assignments for borderline matches, and groups the
remaining unknown faces into clusters for review.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// appContext bundles the handles a command needs to run the engine.
type appContext struct {
	cfg     *config.Config
	pool    *postgres.Pool
	stores  *store.Stores
	vectors vecstore.VectorStore
	engine  *engine.Engine
	logger  *log.Logger
}

// Close releases the database pool.
func (a *appContext) Close() {
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			fmt.Printf("Warning: closing database pool: %v\n", err)
		}
	}
}

// setupApp connects to PostgreSQL, runs migrations, and builds the
// engine over the repositories and the pgvector point store.
func setupApp() (*appContext, error) {
	return setupAppWithLogger(log.Default())
}

func setupAppWithLogger(logger *log.Logger) (*appContext, error) {
	cfg := config.Load()

	pool, stores, err := postgres.NewStores(&cfg.Database)
	if err != nil {
		return nil, err
	}

	vectors := vecstore.NewPostgresStore(pool.DB())
	return &appContext{
		cfg:     cfg,
		pool:    pool,
		stores:  stores,
		vectors: vectors,
		engine:  engine.New(stores, vectors, logger),
		logger:  logger,
	}, nil
}

// mirrorVectors swaps the engine onto an in-memory HNSW mirror of the
// pgvector store, warming it from the current point set. Searches then
// run in-process; writes still go through Postgres first. A warm
// failure keeps the engine on pgvector alone.
func (a *appContext) mirrorVectors(ctx context.Context) {
	mirror := vecstore.NewMirroredStore(a.vectors)
	fmt.Println("Building in-memory vector index...")
	n, err := mirror.Warm(ctx, vecstore.NamespaceFaces, vecstore.NamespaceAnchors)
	if err != nil {
		fmt.Printf("Warning: in-memory vector index unavailable, searching pgvector directly: %v\n", err)
		return
	}
	fmt.Printf("In-memory vector index ready with %d points\n", n)
	a.vectors = mirror
	a.engine = engine.New(a.stores, mirror, a.logger)
}

// quietLogger drops engine log output; used by commands whose stdout
// is machine-readable.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

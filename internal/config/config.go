package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Engine    EngineConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL string // embedding service, defaults to http://localhost:8000
	Dim int    // face embedding dimension, defaults to 512
}

type EngineConfig struct {
	Workers  int // bounded worker pool size (default 4)
	Defaults store.EngineSettings
}

// engineDefaults mirrors the embedded defaults.yaml layout.
type engineDefaults struct {
	Engine store.EngineSettings `yaml:"engine"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func Load() *Config {
	var defaults engineDefaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// Embedded file, should never happen in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Engine: EngineConfig{
			Workers:  envInt("ENGINE_WORKERS", 4),
			Defaults: defaults.Engine,
		},
	}
}

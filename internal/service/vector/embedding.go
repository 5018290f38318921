package vector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/armchr/testgen/internal/config"
	"go.uber.org/zap"
)

// EmbeddingModel represents a generic embedding model interface
// This abstraction allows swapping between Ollama, OpenAI, etc.
type EmbeddingModel interface {
	// GenerateEmbedding generates a vector embedding for the given text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateEmbeddings generates vector embeddings for multiple texts (batch operation)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// GetDimension returns the dimension of the embedding vectors
	GetDimension() int

	// GetModelName returns the name of the embedding model being used
	GetModelName() string
}

// NewEmbeddingModel builds the configured provider, rate limited, and cached on disk
// when a cache directory is set. The returned closer releases the cache.
func NewEmbeddingModel(cfg config.EmbeddingConfig, workDir string, logger *zap.Logger) (EmbeddingModel, func() error, error) {
	cfg = cfg.GetDefaults()

	var base EmbeddingModel
	var err error
	switch cfg.Provider {
	case "ollama":
		base, err = NewOllamaEmbedding(OllamaEmbeddingConfig{
			APIURL:    cfg.URL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}, logger)
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		base, err = NewOpenAIEmbedding(OpenAIEmbeddingConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.URL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}, logger)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, nil, err
	}

	model := EmbeddingModel(NewRateLimitedEmbedding(base, cfg.RequestsPerSecond))
	closer := func() error { return nil }

	if cfg.CacheDir != "" {
		dir := cfg.CacheDir
		if !filepath.IsAbs(dir) && workDir != "" {
			dir = filepath.Join(workDir, dir)
		}
		cached, err := NewCachedEmbedding(model, CacheConfig{Path: dir}, logger)
		if err != nil {
			return nil, nil, err
		}
		model = cached
		closer = cached.Close
	}

	logger.Info("Embedding model ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", model.GetModelName()),
		zap.Int("dimension", model.GetDimension()),
		zap.Bool("cached", cfg.CacheDir != ""))
	return model, closer, nil
}

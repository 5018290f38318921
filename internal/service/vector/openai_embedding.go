package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIEmbedding implements EmbeddingModel on the OpenAI embeddings API
type OpenAIEmbedding struct {
	client    *openai.Client
	model     string
	dimension int
	logger    *zap.Logger
}

// OpenAIEmbeddingConfig holds configuration for OpenAI embeddings
type OpenAIEmbeddingConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// NewOpenAIEmbedding creates a new OpenAI embedding client
func NewOpenAIEmbedding(config OpenAIEmbeddingConfig, logger *zap.Logger) (*OpenAIEmbedding, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not provided (set embedding.api_key in config or OPENAI_API_KEY env var)")
	}
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}
	if config.Dimension == 0 {
		config.Dimension = 1536
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}

	return &OpenAIEmbedding{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     config.Model,
		dimension: config.Dimension,
		logger:    logger,
	}, nil
}

// GenerateEmbedding generates a vector embedding for the given text
func (o *OpenAIEmbedding) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := o.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// GenerateEmbeddings embeds all texts in a single request
func (o *OpenAIEmbedding) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("text %d cannot be empty", i)
		}
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embedding call failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// GetDimension returns the dimension of the embedding vectors
func (o *OpenAIEmbedding) GetDimension() int {
	return o.dimension
}

// GetModelName returns the name of the embedding model being used
func (o *OpenAIEmbedding) GetModelName() string {
	return o.model
}

package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OllamaEmbedding implements EmbeddingModel interface using Ollama
type OllamaEmbedding struct {
	apiURL    string
	model     string
	dimension int
	logger    *zap.Logger
	client    *http.Client
}

// OllamaEmbeddingConfig holds configuration for Ollama embedding model
type OllamaEmbeddingConfig struct {
	APIURL    string // e.g., "http://localhost:11434"
	Model     string // e.g., "nomic-embed-text"
	Dimension int    // Dimension of the embedding vector
}

const (
	// NomicEmbedText is a 768-dimensional embedding model
	NomicEmbedText = "nomic-embed-text"

	// MxbaiEmbedLarge is a 1024-dimensional embedding model
	MxbaiEmbedLarge = "mxbai-embed-large"

	// AllMiniLM is a lightweight 384-dimensional embedding model
	AllMiniLM = "all-minilm"
)

var modelDimensions = map[string]int{
	NomicEmbedText:  768,
	AllMiniLM:       384,
	MxbaiEmbedLarge: 1024,
}

// NewOllamaEmbedding creates a new Ollama embedding model client
func NewOllamaEmbedding(config OllamaEmbeddingConfig, logger *zap.Logger) (*OllamaEmbedding, error) {
	if config.APIURL == "" {
		config.APIURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = NomicEmbedText
	}

	dimension := config.Dimension
	if dimension == 0 {
		dimension = 768
		if knownDim, ok := modelDimensions[strings.Split(config.Model, ":")[0]]; ok {
			dimension = knownDim
		}
	}

	return &OllamaEmbedding{
		apiURL:    strings.TrimSuffix(config.APIURL, "/"),
		model:     config.Model,
		dimension: dimension,
		logger:    logger,
		client:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// GenerateEmbedding generates a vector embedding for the given text
func (o *OllamaEmbedding) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	jsonData, err := json.Marshal(ollamaEmbeddingRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var embeddingResp ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embeddingResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for model %s", o.model)
	}

	embedding := make([]float32, len(embeddingResp.Embedding))
	for i, v := range embeddingResp.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// GenerateEmbeddings embeds texts one request at a time; the endpoint has no batch form.
func (o *OllamaEmbedding) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for i, text := range texts {
		embedding, err := o.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding for text %d: %w", i, err)
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, nil
}

// GetDimension returns the dimension of the embedding vectors
func (o *OllamaEmbedding) GetDimension() int {
	return o.dimension
}

// GetModelName returns the name of the embedding model being used
func (o *OllamaEmbedding) GetModelName() string {
	return o.model
}

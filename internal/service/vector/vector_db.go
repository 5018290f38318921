package vector

import (
	"context"
)

// Document is one stored piece of code text with flat string metadata.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// VectorDatabase represents a generic vector database interface
// This abstraction allows swapping between Qdrant, Weaviate, Pinecone, etc.
type VectorDatabase interface {
	// CreateCollection creates a new collection with the specified dimension and distance metric
	CreateCollection(ctx context.Context, collectionName string, vectorDim int, distance DistanceMetric) error

	// DeleteCollection deletes a collection
	DeleteCollection(ctx context.Context, collectionName string) error

	// CollectionExists checks if a collection exists
	CollectionExists(ctx context.Context, collectionName string) (bool, error)

	// UpsertDocuments inserts or replaces documents; documents without an embedding are skipped
	UpsertDocuments(ctx context.Context, collectionName string, docs []*Document) error

	// SearchSimilar returns the nearest documents and their similarity scores, best first.
	// Every filter entry must match the payload exactly.
	SearchSimilar(ctx context.Context, collectionName string, queryVector []float32, limit int, filter map[string]string) ([]*Document, []float32, error)

	// ExistingIDs reports which of the given ids are stored
	ExistingIDs(ctx context.Context, collectionName string, ids []string) (map[string]bool, error)

	// DeleteByFilter removes every document matching the filter
	DeleteByFilter(ctx context.Context, collectionName string, filter map[string]string) error

	// Count returns the number of documents matching the filter
	Count(ctx context.Context, collectionName string, filter map[string]string) (uint64, error)

	// Close closes the database connection
	Close() error

	// Health checks the health of the vector database
	Health(ctx context.Context) error
}

// DistanceMetric represents the distance metric used for vector similarity
type DistanceMetric string

const (
	// DistanceMetricCosine uses cosine similarity (best for normalized embeddings)
	DistanceMetricCosine DistanceMetric = "cosine"

	// DistanceMetricDot uses dot product similarity
	DistanceMetricDot DistanceMetric = "dot"

	// DistanceMetricEuclidean uses Euclidean distance
	DistanceMetricEuclidean DistanceMetric = "euclidean"
)

package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/armchr/testgen/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetaProject is the payload key scoping documents to one indexed project.
const MetaProject = "project"

// documentNamespace seeds the UUIDv5 ids of stored documents.
var documentNamespace = uuid.MustParse("6f1c3c6e-2b1a-5f43-9c1e-4d6a0b7e8f21")

// CodeStore is the embedding store used by indexing and retrieval: it embeds text,
// stores it in one vector collection, and answers similarity queries as context items.
type CodeStore struct {
	db         VectorDatabase
	embedder   EmbeddingModel
	collection string
	logger     *zap.Logger

	mu      sync.Mutex
	ensured bool
}

// NewCodeStore creates a store over collection.
func NewCodeStore(db VectorDatabase, embedder EmbeddingModel, collection string, logger *zap.Logger) *CodeStore {
	return &CodeStore{db: db, embedder: embedder, collection: collection, logger: logger}
}

// EnsureCollection creates the collection on first use. Failures are retried on the
// next call.
func (s *CodeStore) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	exists, err := s.db.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.db.CreateCollection(ctx, s.collection, s.embedder.GetDimension(), DistanceMetricCosine); err != nil {
			return err
		}
	}
	s.ensured = true
	return nil
}

// DocumentID derives a stable id from the project and the item identity, so re-adding
// the same content replaces the stored point instead of duplicating it.
func DocumentID(project string, content string, metadata map[string]string) string {
	identity := model.ContextItem{Content: content, Metadata: metadata}.Identity()
	return uuid.NewSHA1(documentNamespace, []byte(project+"\x00"+identity)).String()
}

// Add embeds and stores one document and returns its id.
func (s *CodeStore) Add(ctx context.Context, project, content string, metadata map[string]string) (string, error) {
	ids, err := s.AddBatch(ctx, project, []string{content}, []map[string]string{metadata})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddBatch embeds and stores documents in one upsert.
func (s *CodeStore) AddBatch(ctx context.Context, project string, contents []string, metadata []map[string]string) ([]string, error) {
	if len(contents) != len(metadata) {
		return nil, fmt.Errorf("contents and metadata length mismatch: %d vs %d", len(contents), len(metadata))
	}
	if len(contents) == 0 {
		return nil, nil
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %s: %w", s.collection, err)
	}

	embeddings, err := s.embedder.GenerateEmbeddings(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}

	docs := make([]*Document, len(contents))
	ids := make([]string, len(contents))
	for i, content := range contents {
		meta := make(map[string]string, len(metadata[i])+1)
		for k, v := range metadata[i] {
			meta[k] = v
		}
		meta[MetaProject] = project
		ids[i] = DocumentID(project, content, metadata[i])
		docs[i] = &Document{ID: ids[i], Content: content, Metadata: meta, Embedding: embeddings[i]}
	}

	if err := s.db.UpsertDocuments(ctx, s.collection, docs); err != nil {
		return nil, err
	}
	return ids, nil
}

// Existing reports which document ids are already stored. A missing collection means
// nothing is stored.
func (s *CodeStore) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	exists, err := s.db.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]bool{}, nil
	}
	return s.db.ExistingIDs(ctx, s.collection, ids)
}

// Search returns up to topK items nearest to query, ascending by distance. Distance is
// 1 - cosine similarity. Filter entries must match metadata exactly; the project is
// always part of the filter.
func (s *CodeStore) Search(ctx context.Context, project, query string, topK int, filter map[string]string) ([]model.ContextItem, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	full := make(map[string]string, len(filter)+1)
	for k, v := range filter {
		full[k] = v
	}
	full[MetaProject] = project

	docs, scores, err := s.db.SearchSimilar(ctx, s.collection, vec, topK, full)
	if err != nil {
		return nil, err
	}

	items := make([]model.ContextItem, 0, len(docs))
	for i, doc := range docs {
		meta := doc.Metadata
		delete(meta, MetaProject)
		items = append(items, model.ContextItem{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: meta,
			Distance: 1 - float64(scores[i]),
		})
	}
	return items, nil
}

// DeleteProject removes every document of a project.
func (s *CodeStore) DeleteProject(ctx context.Context, project string) error {
	exists, err := s.db.CollectionExists(ctx, s.collection)
	if err != nil || !exists {
		return err
	}
	if err := s.db.DeleteByFilter(ctx, s.collection, map[string]string{MetaProject: project}); err != nil {
		return err
	}
	s.logger.Info("Deleted project documents", zap.String("project", project), zap.String("collection", s.collection))
	return nil
}

// CountProject returns the number of stored documents of a project.
func (s *CodeStore) CountProject(ctx context.Context, project string) (uint64, error) {
	exists, err := s.db.CollectionExists(ctx, s.collection)
	if err != nil || !exists {
		return 0, err
	}
	return s.db.Count(ctx, s.collection, map[string]string{MetaProject: project})
}

// Health checks the vector database.
func (s *CodeStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

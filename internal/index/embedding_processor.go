package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/service/vector"
	"github.com/armchr/testgen/internal/util"
	"go.uber.org/zap"
)

// DocumentStore is the part of the embedding store used by indexing.
type DocumentStore interface {
	AddBatch(ctx context.Context, project string, contents []string, metadata []map[string]string) ([]string, error)
	Existing(ctx context.Context, ids []string) (map[string]bool, error)
	DeleteProject(ctx context.Context, project string) error
	CountProject(ctx context.Context, project string) (uint64, error)
}

type documentBatch struct {
	project string
	docs    []Document
	ids     []string
}

// EmbeddingProcessor turns parsed classes into class and method documents and upserts
// the ones not stored yet. Uploads run on an executor pool in batches.
type EmbeddingProcessor struct {
	store     DocumentStore
	bloom     *util.BloomFilterManager // nil when disabled
	workers   int
	batchSize int
	logger    *zap.Logger

	mu      sync.Mutex
	pool    *util.ExecutorPool[documentBatch]
	pending []Document
	ids     []string

	embedded atomic.Int64
	skipped  atomic.Int64
}

func NewEmbeddingProcessor(store DocumentStore, bloom *util.BloomFilterManager, cfg config.IndexConfig, logger *zap.Logger) *EmbeddingProcessor {
	cfg = cfg.GetDefaults()
	return &EmbeddingProcessor{
		store:     store,
		bloom:     bloom,
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

func (ep *EmbeddingProcessor) Name() string {
	return "Embedding"
}

func (ep *EmbeddingProcessor) Init(ctx context.Context, project *config.Project, force bool) error {
	ep.embedded.Store(0)
	ep.skipped.Store(0)

	if force {
		if err := ep.store.DeleteProject(ctx, project.Name); err != nil {
			return fmt.Errorf("failed to delete project documents: %w", err)
		}
		if ep.bloom != nil {
			if err := ep.bloom.Delete(project.Name); err != nil {
				ep.logger.Warn("Failed to delete bloom filter", zap.String("project", project.Name), zap.Error(err))
			}
		}
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.pending = nil
	ep.ids = nil
	ep.pool = util.NewExecutorPool(ep.workers, ep.workers*2, func(b documentBatch) error {
		return ep.upload(ctx, b)
	})
	return nil
}

// ProcessFile queues the documents of a file; unchanged documents are dropped here.
func (ep *EmbeddingProcessor) ProcessFile(ctx context.Context, project *config.Project, fileCtx *FileContext) error {
	var docs []Document
	for _, fact := range fileCtx.Classes {
		docs = append(docs, ClassDocument(fact, string(fileCtx.Content)))
		docs = append(docs, MethodDocuments(fact)...)
	}
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = vector.DocumentID(project.Name, d.Content, d.Metadata)
	}

	fresh, freshIDs, err := ep.filterUnchanged(ctx, project.Name, docs, ids)
	if err != nil {
		return err
	}
	ep.skipped.Add(int64(len(docs) - len(fresh)))

	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.pending = append(ep.pending, fresh...)
	ep.ids = append(ep.ids, freshIDs...)
	for len(ep.pending) >= ep.batchSize {
		ep.submitLocked(project.Name, ep.batchSize)
	}
	return nil
}

// filterUnchanged drops documents already stored. A bloom miss proves the document is
// new; a bloom hit is confirmed against the store.
func (ep *EmbeddingProcessor) filterUnchanged(ctx context.Context, project string, docs []Document, ids []string) ([]Document, []string, error) {
	var maybe []string
	for _, id := range ids {
		if ep.bloom == nil || ep.bloom.Test(project, id) {
			maybe = append(maybe, id)
		}
	}

	stored := map[string]bool{}
	if len(maybe) > 0 {
		var err error
		stored, err = ep.store.Existing(ctx, maybe)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check stored documents: %w", err)
		}
	}

	var fresh []Document
	var freshIDs []string
	for i, d := range docs {
		if stored[ids[i]] {
			continue
		}
		fresh = append(fresh, d)
		freshIDs = append(freshIDs, ids[i])
	}
	return fresh, freshIDs, nil
}

func (ep *EmbeddingProcessor) submitLocked(project string, n int) {
	if n > len(ep.pending) {
		n = len(ep.pending)
	}
	batch := documentBatch{
		project: project,
		docs:    append([]Document(nil), ep.pending[:n]...),
		ids:     append([]string(nil), ep.ids[:n]...),
	}
	ep.pending = ep.pending[n:]
	ep.ids = ep.ids[n:]
	ep.pool.Submit(batch)
}

func (ep *EmbeddingProcessor) upload(ctx context.Context, b documentBatch) error {
	contents := make([]string, len(b.docs))
	metadata := make([]map[string]string, len(b.docs))
	for i, d := range b.docs {
		contents[i] = d.Content
		metadata[i] = d.Metadata
	}
	if _, err := ep.store.AddBatch(ctx, b.project, contents, metadata); err != nil {
		ep.logger.Error("Failed to upload document batch",
			zap.String("project", b.project),
			zap.Int("documents", len(b.docs)),
			zap.Error(err))
		return err
	}
	if ep.bloom != nil {
		for _, id := range b.ids {
			ep.bloom.Add(b.project, id)
		}
	}
	ep.embedded.Add(int64(len(b.docs)))
	return nil
}

// PostProcess uploads the remainder, waits for the pool and saves the bloom filter.
func (ep *EmbeddingProcessor) PostProcess(ctx context.Context, project *config.Project) error {
	ep.mu.Lock()
	if len(ep.pending) > 0 {
		ep.submitLocked(project.Name, len(ep.pending))
	}
	pool := ep.pool
	ep.mu.Unlock()

	var err error
	if pool != nil {
		err = pool.Close()
	}
	if ep.bloom != nil {
		if saveErr := ep.bloom.Save(project.Name); saveErr != nil {
			ep.logger.Warn("Failed to save bloom filter", zap.String("project", project.Name), zap.Error(saveErr))
		}
	}

	ep.logger.Info("Embedding processing completed",
		zap.String("project", project.Name),
		zap.Int64("embedded", ep.embedded.Load()),
		zap.Int64("skipped", ep.skipped.Load()))
	if err != nil {
		return fmt.Errorf("document upload failed: %w", err)
	}
	return nil
}

// Counts returns documents embedded and skipped since the last Init.
func (ep *EmbeddingProcessor) Counts() (embedded, skipped int64) {
	return ep.embedded.Load(), ep.skipped.Load()
}

// HasIndexed reports whether the store holds documents for the project.
func (ep *EmbeddingProcessor) HasIndexed(ctx context.Context, project string) (bool, error) {
	n, err := ep.store.CountProject(ctx, project)
	return n > 0, err
}

package vector

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// CacheConfig configures the on-disk embedding cache.
type CacheConfig struct {
	Path     string
	InMemory bool
}

// CachedEmbedding memoizes embeddings in badger, keyed by model name and text.
// Re-indexing unchanged code then costs no embedding calls.
type CachedEmbedding struct {
	inner  EmbeddingModel
	db     *badger.DB
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedding opens the cache and wraps inner.
func NewCachedEmbedding(inner EmbeddingModel, cfg CacheConfig, logger *zap.Logger) (*CachedEmbedding, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("embedding cache path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create embedding cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil).WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &CachedEmbedding{inner: inner, db: db, logger: logger}, nil
}

func (c *CachedEmbedding) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.inner.GetModelName() + "\x00" + text))
	return append([]byte("emb:"), sum[:]...)
}

func (c *CachedEmbedding) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateEmbeddings serves cached vectors and embeds only the misses, in one inner call.
func (c *CachedEmbedding) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(c.key(text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missIdx = append(missIdx, i)
				missTexts = append(missTexts, text)
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				out[i] = decodeVector(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// a broken cache must not stop indexing
		c.logger.Warn("Embedding cache read failed", zap.Error(err))
		return c.inner.GenerateEmbeddings(ctx, texts)
	}

	c.hits.Add(int64(len(texts) - len(missIdx)))
	c.misses.Add(int64(len(missIdx)))
	if len(missIdx) == 0 {
		return out, nil
	}

	fresh, err := c.inner.GenerateEmbeddings(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for j, i := range missIdx {
		out[i] = fresh[j]
		if err := wb.Set(c.key(missTexts[j]), encodeVector(fresh[j])); err != nil {
			c.logger.Warn("Embedding cache write failed", zap.Error(err))
			return out, nil
		}
	}
	if err := wb.Flush(); err != nil {
		c.logger.Warn("Embedding cache flush failed", zap.Error(err))
	}
	return out, nil
}

// CacheStats returns hit and miss counts since open.
func (c *CachedEmbedding) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedEmbedding) GetDimension() int {
	return c.inner.GetDimension()
}

func (c *CachedEmbedding) GetModelName() string {
	return c.inner.GetModelName()
}

// Close closes the underlying badger database.
func (c *CachedEmbedding) Close() error {
	return c.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

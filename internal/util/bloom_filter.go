package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/armchr/testgen/internal/config"
	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
)

// BloomFilterManager keeps one bloom filter per project recording which indexed
// documents have already been embedded. Filters persist to disk between runs.
type BloomFilterManager struct {
	config     config.BloomFilterConfig
	filters    map[string]*bloom.BloomFilter
	mu         sync.RWMutex
	logger     *zap.Logger
	storageDir string
}

// NewBloomFilterManager creates a new bloom filter manager
func NewBloomFilterManager(cfg config.BloomFilterConfig, logger *zap.Logger) (*BloomFilterManager, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("bloom filter is disabled in config")
	}

	if cfg.ExpectedItems == 0 {
		cfg.ExpectedItems = 200000
	}
	if cfg.FalsePositiveRate == 0 {
		cfg.FalsePositiveRate = 0.01
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "./bloom_filters"
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bloom filter storage directory: %w", err)
	}

	return &BloomFilterManager{
		config:     cfg,
		filters:    make(map[string]*bloom.BloomFilter),
		logger:     logger,
		storageDir: cfg.StorageDir,
	}, nil
}

// DocumentKey hashes an indexed document so that unchanged content maps to the same key.
func DocumentKey(id, content string) string {
	sum := sha256.Sum256([]byte(id + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

func (bfm *BloomFilterManager) getOrCreateFilter(project string) *bloom.BloomFilter {
	bfm.mu.RLock()
	filter, exists := bfm.filters[project]
	bfm.mu.RUnlock()
	if exists {
		return filter
	}

	bfm.mu.Lock()
	defer bfm.mu.Unlock()
	if filter, exists := bfm.filters[project]; exists {
		return filter
	}

	filterPath := bfm.getFilterPath(project)
	filter, err := bfm.loadFromDisk(filterPath)
	if err != nil {
		bfm.logger.Info("Creating new bloom filter for project",
			zap.String("project", project),
			zap.Uint("expected_items", bfm.config.ExpectedItems),
			zap.Float64("false_positive_rate", bfm.config.FalsePositiveRate))
		filter = bloom.NewWithEstimates(bfm.config.ExpectedItems, bfm.config.FalsePositiveRate)
	} else {
		bfm.logger.Info("Loaded bloom filter from disk",
			zap.String("project", project),
			zap.String("path", filterPath))
	}

	bfm.filters[project] = filter
	return filter
}

// Add records a document key for a project.
func (bfm *BloomFilterManager) Add(project, key string) {
	bfm.getOrCreateFilter(project).AddString(key)
}

// Test reports whether the key may have been recorded. False means definitely not.
func (bfm *BloomFilterManager) Test(project, key string) bool {
	return bfm.getOrCreateFilter(project).TestString(key)
}

// Save persists the bloom filter for a project to disk
func (bfm *BloomFilterManager) Save(project string) error {
	bfm.mu.RLock()
	filter, exists := bfm.filters[project]
	bfm.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no bloom filter found for project: %s", project)
	}
	return bfm.saveToDisk(filter, bfm.getFilterPath(project))
}

// SaveAll persists all bloom filters to disk
func (bfm *BloomFilterManager) SaveAll() error {
	bfm.mu.RLock()
	defer bfm.mu.RUnlock()

	for project, filter := range bfm.filters {
		filterPath := bfm.getFilterPath(project)
		if err := bfm.saveToDisk(filter, filterPath); err != nil {
			bfm.logger.Error("Failed to save bloom filter", zap.String("project", project), zap.Error(err))
			return err
		}
		bfm.logger.Debug("Saved bloom filter to disk", zap.String("project", project), zap.String("path", filterPath))
	}
	return nil
}

// Delete removes the bloom filter for a project from both memory and disk.
// A forced reindex calls this so every document is embedded again.
func (bfm *BloomFilterManager) Delete(project string) error {
	bfm.mu.Lock()
	delete(bfm.filters, project)
	bfm.mu.Unlock()

	if err := os.Remove(bfm.getFilterPath(project)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete bloom filter file: %w", err)
	}
	bfm.logger.Info("Deleted bloom filter", zap.String("project", project))
	return nil
}

func (bfm *BloomFilterManager) getFilterPath(project string) string {
	return filepath.Join(bfm.storageDir, fmt.Sprintf("%s.bloom", project))
}

func (bfm *BloomFilterManager) saveToDisk(filter *bloom.BloomFilter, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bloom filter file: %w", err)
	}
	defer file.Close()

	if _, err := filter.WriteTo(file); err != nil {
		return fmt.Errorf("failed to write bloom filter: %w", err)
	}
	return nil
}

func (bfm *BloomFilterManager) loadFromDisk(path string) (*bloom.BloomFilter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bloom filter file: %w", err)
	}
	defer file.Close()

	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("failed to read bloom filter: %w", err)
	}
	return filter, nil
}

// Package bootstrap builds the long-lived collaborators of the test generator from
// configuration and hands them to the service layer.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/contextaware"
	"github.com/armchr/testgen/internal/db"
	"github.com/armchr/testgen/internal/index"
	"github.com/armchr/testgen/internal/parse"
	"github.com/armchr/testgen/internal/prompt"
	"github.com/armchr/testgen/internal/retrieval"
	"github.com/armchr/testgen/internal/service"
	"github.com/armchr/testgen/internal/service/llm"
	"github.com/armchr/testgen/internal/service/vector"
	"github.com/armchr/testgen/internal/util"
	"go.uber.org/zap"
)

// Options turn off the parts of the container a command does not need.
type Options struct {
	// WithoutVectorStore skips the embedding model and Qdrant. Retrieval then
	// degrades to no-context generation.
	WithoutVectorStore bool
	// WithoutLLM skips the generation backend, for commands that only index or report.
	WithoutLLM bool
}

// ServiceContainer owns every connection opened for a run.
type ServiceContainer struct {
	Config       *config.Config
	Conn         *db.Connection
	ClassStore   *db.ClassStore
	SessionStore *db.SessionStore
	CodeStore    *vector.CodeStore // nil when the vector store is unavailable
	Indexer      *index.Indexer
	Service      *service.TestGenService

	qdrant         *vector.QdrantDatabase
	bloom          *util.BloomFilterManager
	embeddingClose func() error
	logger         *zap.Logger
}

func NewServiceContainer(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*ServiceContainer, error) {
	app := cfg.App.GetDefaults()
	sc := &ServiceContainer{Config: cfg, logger: logger}

	storeCfg := cfg.ClassStore.GetDefaults()
	if storeCfg.Driver == string(db.DialectSQLite) && storeCfg.SQLitePath != ":memory:" && !filepath.IsAbs(storeCfg.SQLitePath) {
		storeCfg.SQLitePath = filepath.Join(app.WorkDir, storeCfg.SQLitePath)
	}
	conn, err := db.Open(ctx, storeCfg, cfg.MySQL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open class store: %w", err)
	}
	sc.Conn = conn

	if sc.ClassStore, err = db.NewClassStore(ctx, conn, logger); err != nil {
		sc.Close(ctx)
		return nil, err
	}
	if sc.SessionStore, err = db.NewSessionStore(ctx, conn, logger); err != nil {
		sc.Close(ctx)
		return nil, err
	}

	processors := []index.FileProcessor{index.NewClassStoreProcessor(sc.ClassStore, logger)}
	if !opts.WithoutVectorStore {
		if err := sc.openVectorStore(ctx, app.WorkDir); err != nil {
			logger.Warn("Vector store unavailable, retrieval will run without context", zap.Error(err))
		} else {
			processors = append(processors, index.NewEmbeddingProcessor(sc.CodeStore, sc.bloom, cfg.Index, logger))
		}
	}
	sc.Indexer = index.NewIndexer(parse.NewParser(logger), processors, cfg.Index, logger)

	gen := cfg.Generation.GetDefaults()
	known, err := contextaware.LoadKnownTypes(gen.KnownTypesFile)
	if err != nil {
		sc.Close(ctx)
		return nil, err
	}
	libs, err := retrieval.LoadLibraries(gen.ExternalLibrariesFile)
	if err != nil {
		sc.Close(ctx)
		return nil, err
	}
	pm, err := prompt.NewManager(gen.PromptsFile)
	if err != nil {
		sc.Close(ctx)
		return nil, err
	}

	deps := service.Dependencies{
		Classes:   sc.ClassStore,
		Contexts:  contextaware.NewGenerator(sc.ClassStore, sc.Indexer, known, libs, logger),
		Enhancer:  contextaware.NewEnhancer(sc.ClassStore, known, libs, logger),
		Indexer:   sc.Indexer,
		Prompts:   prompt.NewBuilder(pm),
		Libraries: libs,
		Sessions:  sc.SessionStore,
	}
	if sc.CodeStore != nil {
		deps.Searcher = sc.CodeStore
	}
	if !opts.WithoutLLM {
		llmService, err := llm.NewLLMService(cfg.LLM, logger)
		if err != nil {
			sc.Close(ctx)
			return nil, fmt.Errorf("failed to create LLM service: %w", err)
		}
		deps.LLM = llmService
	}

	sc.Service = service.NewTestGenService(cfg, deps, logger)
	logger.Info("Service container ready",
		zap.String("class_store", storeCfg.Driver),
		zap.Bool("vector_store", sc.CodeStore != nil),
		zap.Bool("bloom_filter", sc.bloom != nil),
		zap.Bool("llm", deps.LLM != nil))
	return sc, nil
}

func (sc *ServiceContainer) openVectorStore(ctx context.Context, workDir string) error {
	embedder, closer, err := vector.NewEmbeddingModel(sc.Config.Embedding, workDir, sc.logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding model: %w", err)
	}

	qcfg := sc.Config.Qdrant.GetDefaults()
	qdrant, err := vector.NewQdrantDatabase(qcfg.Host, qcfg.Port, qcfg.APIKey, sc.logger)
	if err != nil {
		if closer != nil {
			closer()
		}
		return err
	}

	store := vector.NewCodeStore(qdrant, embedder, qcfg.Collection, sc.logger)
	if err := store.EnsureCollection(ctx); err != nil {
		qdrant.Close()
		if closer != nil {
			closer()
		}
		return err
	}
	sc.CodeStore = store
	sc.qdrant = qdrant
	sc.embeddingClose = closer

	if sc.Config.BloomFilter.Enabled {
		bcfg := sc.Config.BloomFilter
		if bcfg.StorageDir != "" && !filepath.IsAbs(bcfg.StorageDir) {
			bcfg.StorageDir = filepath.Join(workDir, bcfg.StorageDir)
		} else if bcfg.StorageDir == "" {
			bcfg.StorageDir = filepath.Join(workDir, "bloom_filters")
		}
		bloom, err := util.NewBloomFilterManager(bcfg, sc.logger)
		if err != nil {
			sc.logger.Warn("Bloom filter disabled", zap.Error(err))
		} else {
			sc.bloom = bloom
		}
	}
	return nil
}

// Close releases resources in reverse order of creation and reports every failure.
func (sc *ServiceContainer) Close(ctx context.Context) error {
	var errs []error
	if sc.bloom != nil {
		if err := sc.bloom.SaveAll(); err != nil {
			errs = append(errs, fmt.Errorf("failed to save bloom filters: %w", err))
		}
	}
	if sc.qdrant != nil {
		if err := sc.qdrant.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close qdrant: %w", err))
		}
	}
	if sc.embeddingClose != nil {
		if err := sc.embeddingClose(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close embedding cache: %w", err))
		}
	}
	if sc.Conn != nil {
		if err := sc.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close class store: %w", err))
		}
	}
	return errors.Join(errs...)
}

package index

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/db"
	"go.uber.org/zap"
)

// ClassStoreProcessor persists parsed class facts, replacing earlier rows per class.
type ClassStoreProcessor struct {
	store   *db.ClassStore
	logger  *zap.Logger
	classes atomic.Int64
	methods atomic.Int64
}

func NewClassStoreProcessor(store *db.ClassStore, logger *zap.Logger) *ClassStoreProcessor {
	return &ClassStoreProcessor{store: store, logger: logger}
}

func (p *ClassStoreProcessor) Name() string {
	return "ClassStore"
}

func (p *ClassStoreProcessor) Init(ctx context.Context, project *config.Project, force bool) error {
	p.classes.Store(0)
	p.methods.Store(0)
	if !force {
		return nil
	}
	n, err := p.store.Clear(ctx, project.Name)
	if err != nil {
		return fmt.Errorf("failed to clear class store: %w", err)
	}
	p.logger.Info("Cleared class store for reindex", zap.String("project", project.Name), zap.Int64("classes", n))
	return nil
}

func (p *ClassStoreProcessor) ProcessFile(ctx context.Context, project *config.Project, fileCtx *FileContext) error {
	if err := p.store.DeleteByFile(ctx, project.Name, fileCtx.RelativePath); err != nil {
		return err
	}
	for _, fact := range fileCtx.Classes {
		if err := p.store.ReplaceClass(ctx, project.Name, fact); err != nil {
			return err
		}
		p.classes.Add(1)
		p.methods.Add(int64(len(fact.Methods)))
	}
	return nil
}

func (p *ClassStoreProcessor) PostProcess(ctx context.Context, project *config.Project) error {
	p.logger.Info("Class store processing completed",
		zap.String("project", project.Name),
		zap.Int64("classes", p.classes.Load()),
		zap.Int64("methods", p.methods.Load()))
	return nil
}

// HasIndexed reports whether class facts exist for the project.
func (p *ClassStoreProcessor) HasIndexed(ctx context.Context, project string) (bool, error) {
	return p.store.HasData(ctx, project)
}

// Counts returns classes and methods stored since the last Init.
func (p *ClassStoreProcessor) Counts() (classes, methods int64) {
	return p.classes.Load(), p.methods.Load()
}

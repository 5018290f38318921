package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SourceParser turns Java source into class facts.
type SourceParser interface {
	ParseSource(path string, src []byte) []*model.ClassFact
}

// IndexedChecker is implemented by processors that can tell whether a project already
// has data, letting a non-forced build be skipped.
type IndexedChecker interface {
	HasIndexed(ctx context.Context, project string) (bool, error)
}

// BuildResult summarizes one Build call.
type BuildResult struct {
	Project        string        `json:"project"`
	AlreadyIndexed bool          `json:"already_indexed"`
	Files          int           `json:"files"`
	ParsedFiles    int           `json:"parsed_files"`
	Classes        int           `json:"classes"`
	Methods        int           `json:"methods"`
	Errors         int           `json:"errors"`
	Duration       time.Duration `json:"duration"`
}

// Indexer scans a project and runs every processor over its parsed files.
// Builds of the same project are collapsed into one.
type Indexer struct {
	parser     SourceParser
	processors []FileProcessor
	workers    int
	group      singleflight.Group
	logger     *zap.Logger
}

func NewIndexer(parser SourceParser, processors []FileProcessor, cfg config.IndexConfig, logger *zap.Logger) *Indexer {
	cfg = cfg.GetDefaults()
	return &Indexer{
		parser:     parser,
		processors: processors,
		workers:    cfg.Workers,
		logger:     logger,
	}
}

// Build indexes the project. Without force it returns early when every checking
// processor reports existing data.
func (ix *Indexer) Build(ctx context.Context, project *config.Project, force bool) (*BuildResult, error) {
	key := fmt.Sprintf("%s|%t", project.Name, force)
	v, err, shared := ix.group.Do(key, func() (any, error) {
		return ix.build(ctx, project, force)
	})
	if shared {
		ix.logger.Debug("Joined in-flight index build", zap.String("project", project.Name))
	}
	if err != nil {
		return nil, err
	}
	return v.(*BuildResult), nil
}

func (ix *Indexer) build(ctx context.Context, project *config.Project, force bool) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{Project: project.Name}

	if !force {
		indexed, err := ix.IsIndexed(ctx, project.Name)
		if err != nil {
			ix.logger.Warn("Failed to check existing index, rebuilding",
				zap.String("project", project.Name), zap.Error(err))
		} else if indexed {
			ix.logger.Info("Project already indexed, skipping", zap.String("project", project.Name))
			result.AlreadyIndexed = true
			return result, nil
		}
	}

	files, err := util.WalkSourceFiles(project.Path, ".java", skipNonSource, ix.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to scan project %s: %w", project.Name, err)
	}
	result.Files = len(files)

	ix.logger.Info("Building index",
		zap.String("project", project.Name),
		zap.String("path", project.Path),
		zap.Int("files", len(files)),
		zap.Bool("force", force))

	for _, p := range ix.processors {
		if err := p.Init(ctx, project, force); err != nil {
			return nil, fmt.Errorf("failed to init %s processor: %w", p.Name(), err)
		}
	}

	parsed := util.DoWorkList(files, ix.workers, func(path string) *FileContext {
		return ix.parseFile(project, path)
	})

	for _, fileCtx := range parsed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fileCtx == nil || len(fileCtx.Classes) == 0 {
			continue
		}
		result.ParsedFiles++
		for _, c := range fileCtx.Classes {
			result.Classes++
			result.Methods += len(c.Methods)
		}
		for _, p := range ix.processors {
			if err := p.ProcessFile(ctx, project, fileCtx); err != nil {
				result.Errors++
				ix.logger.Error("Processor failed on file",
					zap.String("processor", p.Name()),
					zap.String("file", fileCtx.RelativePath),
					zap.Error(err))
			}
		}
	}

	var errs []error
	for _, p := range ix.processors {
		if err := p.PostProcess(ctx, project); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}

	result.Duration = time.Since(start)
	ix.logger.Info("Index build completed",
		zap.String("project", project.Name),
		zap.Int("files", result.Files),
		zap.Int("classes", result.Classes),
		zap.Int("methods", result.Methods),
		zap.Int("errors", result.Errors),
		zap.Duration("duration", result.Duration))

	if len(errs) > 0 {
		return result, fmt.Errorf("failed to finish index build: %w", errors.Join(errs...))
	}
	return result, nil
}

// IsIndexed reports whether every checking processor already holds data for the project.
func (ix *Indexer) IsIndexed(ctx context.Context, project string) (bool, error) {
	checked := false
	for _, p := range ix.processors {
		checker, ok := p.(IndexedChecker)
		if !ok {
			continue
		}
		checked = true
		ok, err := checker.HasIndexed(ctx, project)
		if err != nil || !ok {
			return false, err
		}
	}
	return checked, nil
}

func (ix *Indexer) parseFile(project *config.Project, path string) *FileContext {
	src, err := os.ReadFile(path)
	if err != nil {
		ix.logger.Warn("Failed to read source file", zap.String("file", path), zap.Error(err))
		return nil
	}
	rel, err := filepath.Rel(project.Path, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	facts := ix.parser.ParseSource(rel, src)
	for _, f := range facts {
		f.FilePath = rel
	}
	return &FileContext{RelativePath: rel, Content: src, Classes: facts}
}

// skipNonSource drops test code and generated sources.
func skipNonSource(rel string, isDir bool) bool {
	if util.IsJavaTestPath(rel, isDir) {
		return true
	}
	return isDir && filepath.Base(rel) == "generated-sources"
}

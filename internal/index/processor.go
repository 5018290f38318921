package index

import (
	"context"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/model"
)

// FileContext carries one parsed source file through the processors.
type FileContext struct {
	RelativePath string
	Content      []byte
	Classes      []*model.ClassFact
}

// FileProcessor is one indexing stage applied to every source file of a project.
type FileProcessor interface {
	// Name returns the processor name
	Name() string

	// Init prepares the processor for a project; force drops existing data first
	Init(ctx context.Context, project *config.Project, force bool) error

	// ProcessFile handles a single parsed file
	ProcessFile(ctx context.Context, project *config.Project, fileCtx *FileContext) error

	// PostProcess flushes pending work after all files were processed
	PostProcess(ctx context.Context, project *config.Project) error
}

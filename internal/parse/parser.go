package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/armchr/testgen/internal/model"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	"go.uber.org/zap"
)

// Parser extracts ClassFacts from Java source. Tree-sitter is the primary source of
// truth; the regex extractor is used only when the grammar yields no type declaration.
type Parser struct {
	language *tree_sitter.Language
	logger   *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	return &Parser{
		language: tree_sitter.NewLanguage(java.Language()),
		logger:   logger,
	}
}

// ParseFile reads and parses one Java file. It returns every top-level type it declares;
// an empty slice means no facts are available for the file.
func (p *Parser) ParseFile(path string) ([]*model.ClassFact, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.ParseSource(path, src), nil
}

// ParseSource parses Java source text.
func (p *Parser) ParseSource(path string, src []byte) []*model.ClassFact {
	facts, err := p.parseTree(path, src)
	if err != nil {
		p.logger.Debug("Tree-sitter parse failed, using regex extractor",
			zap.String("file", path), zap.Error(err))
	}
	if len(facts) > 0 {
		return facts
	}

	facts = ParseWithRegex(path, string(src))
	if len(facts) > 0 {
		p.logger.Debug("Regex extractor recovered types",
			zap.String("file", path), zap.Int("types", len(facts)))
	}
	return facts
}

func (p *Parser) parseTree(path string, src []byte) ([]*model.ClassFact, error) {
	// tree-sitter parsers are not safe for concurrent use, so each call gets its own
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(p.language); err != nil {
		return nil, fmt.Errorf("failed to set Java language: %w", err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		p.logger.Debug("Syntax errors in file", zap.String("file", path))
	}

	visitor := NewJavaVisitor(p.logger, path, src)
	return visitor.Visit(root), nil
}

// kindPriority orders declaration kinds when picking a file's primary type.
var kindPriority = map[model.Kind]int{
	model.KindRecord:        0,
	model.KindClass:         1,
	model.KindAbstractClass: 1,
	model.KindInterface:     2,
	model.KindEnum:          3,
}

// PrimaryType picks the type a file is known by: the type named after the file when
// present, else the first declaration by kind priority record > class > interface > enum.
func PrimaryType(facts []*model.ClassFact) *model.ClassFact {
	if len(facts) == 0 {
		return nil
	}
	base := strings.TrimSuffix(filepath.Base(facts[0].FilePath), ".java")
	for _, f := range facts {
		if f.SimpleName == base {
			return f
		}
	}
	best := facts[0]
	for _, f := range facts[1:] {
		if kindPriority[f.Kind] < kindPriority[best.Kind] {
			best = f
		}
	}
	return best
}

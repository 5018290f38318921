// Package contextaware builds test-generation context from the static class index,
// without embeddings.
package contextaware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/db"
	"github.com/armchr/testgen/internal/index"
	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/parse"
	"github.com/armchr/testgen/internal/retrieval"
	"github.com/armchr/testgen/internal/util"
	"go.uber.org/zap"
)

var (
	ErrClassNotFound  = errors.New("class not found")
	ErrMethodNotFound = errors.New("method not found")
)

// ClassSource is the read side of the class index.
type ClassSource interface {
	GetClass(ctx context.Context, project, fqn string) (*model.ClassFact, error)
	FindBySimpleName(ctx context.Context, project, simpleName string) ([]*model.ClassFact, error)
	HasData(ctx context.Context, project string) (bool, error)
}

// Reindexer rebuilds a project's index.
type Reindexer interface {
	Build(ctx context.Context, project *config.Project, force bool) (*index.BuildResult, error)
}

// CoreContext describes the target class and method.
type CoreContext struct {
	ClassFQN        string   `json:"class_fqn"`
	MethodName      string   `json:"method_name"`
	MethodSignature string   `json:"method_signature"`
	MethodSource    string   `json:"method_source"`
	Constructors    []string `json:"constructors,omitempty"`
	Fields          []string `json:"fields,omitempty"`
	Annotations     []string `json:"annotations,omitempty"`
	UsedTypes       []string `json:"used_types,omitempty"`
	// OtherConstructors holds every declared constructor; OtherMethods every method
	// except the target.
	OtherConstructors []string `json:"other_constructors,omitempty"`
	OtherMethods      []string `json:"other_methods,omitempty"`
	FinalFields       []string `json:"final_fields,omitempty"`
	UtilityClass      bool     `json:"utility_class"`
}

// DependencyContext tells the model how to obtain an instance of a dependency.
type DependencyContext struct {
	FQN            string     `json:"fqn"`
	Kind           model.Kind `json:"kind"`
	Constructors   []string   `json:"constructors,omitempty"`
	FactoryMethods []string   `json:"factory_methods,omitempty"`
	Mockable       bool       `json:"mockable"`
	Guide          string     `json:"guide,omitempty"`
}

// SimpleName returns the last segment of the FQN.
func (d DependencyContext) SimpleName() string {
	return d.FQN[strings.LastIndex(d.FQN, ".")+1:]
}

// TestContext is the full static-analysis context of one target method.
type TestContext struct {
	Core         CoreContext         `json:"core"`
	Dependencies []DependencyContext `json:"dependencies,omitempty"`
	Imports      []string            `json:"imports"`
}

// Generator derives a TestContext from the class index.
type Generator struct {
	classes ClassSource
	indexer Reindexer
	known   *KnownTypes
	libs    *retrieval.LibraryTable
	logger  *zap.Logger
}

// NewGenerator creates a generator. indexer may be nil, in which case an empty index
// is never rebuilt.
func NewGenerator(classes ClassSource, indexer Reindexer, known *KnownTypes, libs *retrieval.LibraryTable, logger *zap.Logger) *Generator {
	if known == nil {
		known = DefaultKnownTypes()
	}
	if libs == nil {
		libs = retrieval.DefaultLibraries()
	}
	return &Generator{classes: classes, indexer: indexer, known: known, libs: libs, logger: logger}
}

// GenerateContext returns ErrClassNotFound or ErrMethodNotFound (wrapped) when the
// target cannot be located.
func (g *Generator) GenerateContext(ctx context.Context, project *config.Project, classFQN, methodName string, forceReindex bool) (*TestContext, error) {
	if err := g.ensureIndexed(ctx, project, forceReindex); err != nil {
		return nil, err
	}

	fact, err := g.classes.GetClass(ctx, project.Name, classFQN)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrClassNotFound, classFQN)
		}
		return nil, fmt.Errorf("failed to load class %s: %w", classFQN, err)
	}
	method, ok := fact.FindMethod(methodName)
	if !ok {
		return nil, fmt.Errorf("%w: %s#%s", ErrMethodNotFound, classFQN, methodName)
	}

	lookup := newTypeLookup(ctx, g.classes, project)
	core := g.coreContext(project, fact, method)
	deps := g.dependencies(lookup, fact, method)
	imports := g.imports(lookup, fact, core, deps)

	g.logger.Info("Generated static context",
		zap.String("class", classFQN),
		zap.String("method", methodName),
		zap.Int("dependencies", len(deps)),
		zap.Int("imports", len(imports)))
	return &TestContext{Core: core, Dependencies: deps, Imports: imports}, nil
}

func (g *Generator) ensureIndexed(ctx context.Context, project *config.Project, force bool) error {
	if g.indexer == nil {
		return nil
	}
	if !force {
		has, err := g.classes.HasData(ctx, project.Name)
		if err != nil {
			return fmt.Errorf("failed to check class index: %w", err)
		}
		if has {
			return nil
		}
	}
	g.logger.Info("Rebuilding class index", zap.String("project", project.Name), zap.Bool("force", force))
	if _, err := g.indexer.Build(ctx, project, force); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	return nil
}

func (g *Generator) coreContext(project *config.Project, fact *model.ClassFact, method *model.MethodFact) CoreContext {
	core := CoreContext{
		ClassFQN:        fact.FQN,
		MethodName:      method.Name,
		MethodSignature: method.Signature(),
		Annotations:     append([]string(nil), fact.Annotations...),
		UtilityClass:    fact.HasAnnotation("UtilityClass"),
	}
	for _, c := range fact.PublicConstructors() {
		core.Constructors = append(core.Constructors, c.Signature(fact.SimpleName))
	}
	for _, c := range fact.Constructors {
		core.OtherConstructors = append(core.OtherConstructors, c.Signature(fact.SimpleName))
	}
	for _, f := range fact.Fields {
		if f.AccessModifier == "public" || f.AccessModifier == "protected" {
			core.Fields = append(core.Fields, fieldDeclaration(f))
		}
		if f.AccessModifier == "private" && f.IsFinal {
			core.FinalFields = append(core.FinalFields, fmt.Sprintf("private final %s %s;", f.Type, f.Name))
		}
	}
	for _, m := range fact.Methods {
		if m.Name != method.Name {
			core.OtherMethods = append(core.OtherMethods, m.Signature())
		}
	}

	core.MethodSource = g.methodSource(project, fact, method)
	for _, name := range typeMentions(core.MethodSource) {
		if _, ok := g.known.imports[name]; ok {
			core.UsedTypes = append(core.UsedTypes, name)
		}
	}
	return core
}

// methodSource re-extracts the method text from the file, falling back to the
// signature plus the indexed body.
func (g *Generator) methodSource(project *config.Project, fact *model.ClassFact, method *model.MethodFact) string {
	src := fact.Source
	if src == "" && fact.FilePath != "" {
		path := fact.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(project.Path, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			g.logger.Warn("Failed to read class source", zap.String("path", path), zap.Error(err))
		} else {
			src = string(data)
		}
	}
	if src != "" {
		if text, ok := parse.ExtractMethodSource(src, method.Name); ok {
			return text
		}
	}
	if method.Body != "" {
		return method.Signature() + " " + method.Body
	}
	return method.Signature() + ";"
}

func fieldDeclaration(f model.FieldFact) string {
	var sb strings.Builder
	sb.WriteString(f.AccessModifier)
	if f.IsStatic {
		sb.WriteString(" static")
	}
	if f.IsFinal {
		sb.WriteString(" final")
	}
	fmt.Fprintf(&sb, " %s %s;", f.Type, f.Name)
	return sb.String()
}

// dependencies collects types from method parameters, private final fields and public
// constructor parameters that are project-local or have a fixed description.
func (g *Generator) dependencies(lookup *typeLookup, fact *model.ClassFact, method *model.MethodFact) []DependencyContext {
	var raw []string
	for _, p := range method.Parameters {
		raw = append(raw, util.UnwrapGenerics(paramType(p))...)
	}
	for _, f := range fact.Fields {
		if f.AccessModifier == "private" && f.IsFinal && !f.IsStatic {
			raw = append(raw, util.UnwrapGenerics(f.Type)...)
		}
	}
	for _, c := range fact.PublicConstructors() {
		for _, p := range c.Parameters {
			raw = append(raw, util.UnwrapGenerics(paramType(p))...)
		}
	}

	seen := map[string]bool{fact.SimpleName: true}
	var deps []DependencyContext
	for _, name := range raw {
		if name == "" || seen[name] || util.IsExcludedType(name) {
			continue
		}
		seen[name] = true
		if dep, ok := g.known.Dependency(name); ok {
			deps = append(deps, dep)
			continue
		}
		if dep := lookup.resolve(name, fact.Package); dep != nil {
			deps = append(deps, analyzeDependency(dep))
		}
	}
	return deps
}

func paramType(param string) string {
	info := util.ParseJavaSignature("m("+param+")", "")
	if len(info.Parameters) == 0 {
		return param
	}
	return info.Parameters[0].Type
}

func analyzeDependency(fact *model.ClassFact) DependencyContext {
	dep := DependencyContext{FQN: fact.FQN, Kind: fact.Kind}
	for _, c := range fact.PublicConstructors() {
		dep.Constructors = append(dep.Constructors, c.Signature(fact.SimpleName))
	}
	if fact.Kind == model.KindRecord && len(dep.Constructors) == 0 {
		dep.Constructors = []string{fmt.Sprintf("public %s(%s)", fact.SimpleName, strings.Join(fact.RecordComponents, ", "))}
	}
	for _, m := range fact.Methods {
		if m.IsStatic && m.AccessModifier == "public" && util.CleanTypeName(m.ReturnType) == fact.SimpleName {
			dep.FactoryMethods = append(dep.FactoryMethods, m.Signature())
		}
	}
	dep.Mockable = fact.Kind.IsMockableKind() || len(dep.Constructors) == 0
	dep.Guide = instantiationGuide(fact, dep)
	return dep
}

func instantiationGuide(fact *model.ClassFact, dep DependencyContext) string {
	name := fact.SimpleName
	switch {
	case fact.Kind == model.KindEnum:
		return fmt.Sprintf("Use an enum constant of %s", name)
	case fact.Kind == model.KindRecord:
		return fmt.Sprintf("Records cannot be mocked: new %s(...) with every component in declaration order", name)
	case dep.Mockable:
		return fmt.Sprintf("Use @Mock %s or mock(%s.class)", name, name)
	case len(dep.FactoryMethods) > 0:
		return fmt.Sprintf("new %s or %s", strings.TrimPrefix(dep.Constructors[0], "public "), dep.FactoryMethods[0])
	default:
		return "new " + strings.TrimPrefix(dep.Constructors[0], "public ")
	}
}

var (
	typeMentionRegex = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*\b`)
	lowerRegex       = regexp.MustCompile(`[a-z]`)
)

// typeMentions returns capitalized identifiers in order of first appearance, skipping
// constants and java.lang staples.
func typeMentions(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range typeMentionRegex.FindAllString(text, -1) {
		if seen[name] || util.IsExcludedType(name) || !lowerRegex.MatchString(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

var (
	baseTestImports = []string{
		"import org.junit.jupiter.api.Test;",
		"import org.junit.jupiter.api.BeforeEach;",
		"import org.junit.jupiter.api.AfterEach;",
		"import static org.junit.jupiter.api.Assertions.*;",
	}
	mockitoImports = []string{
		"import org.junit.jupiter.api.extension.ExtendWith;",
		"import org.mockito.Mock;",
		"import org.mockito.InjectMocks;",
		"import org.mockito.junit.jupiter.MockitoExtension;",
		"import static org.mockito.Mockito.*;",
	}
)

func (g *Generator) imports(lookup *typeLookup, fact *model.ClassFact, core CoreContext, deps []DependencyContext) []string {
	set := map[string]bool{"import " + fact.FQN + ";": true}
	for _, d := range deps {
		set["import "+d.FQN+";"] = true
	}

	names := util.ExtractAllTypes(core.MethodSignature)
	names = append(names, typeMentions(core.MethodSource)...)
	for _, name := range names {
		if name == fact.SimpleName {
			continue
		}
		if stmt := g.importFor(lookup, name, fact.Package); stmt != "" {
			set[stmt] = true
		}
	}

	for _, stmt := range baseTestImports {
		set[stmt] = true
	}
	if !core.UtilityClass {
		for _, stmt := range mockitoImports {
			set[stmt] = true
		}
	}

	out := make([]string, 0, len(set))
	for stmt := range set {
		out = append(out, stmt)
	}
	sort.Strings(out)
	return out
}

func (g *Generator) importFor(lookup *typeLookup, name, pkg string) string {
	if dep := lookup.resolve(name, pkg); dep != nil {
		return "import " + dep.FQN + ";"
	}
	if fqn, ok := g.known.QualifiedName(name); ok {
		return "import " + fqn + ";"
	}
	return g.libs.ImportStatement(name)
}

// typeLookup memoizes simple-name lookups against the class store for one request.
type typeLookup struct {
	ctx     context.Context
	classes ClassSource
	project *config.Project
	cache   map[string]*model.ClassFact
}

func newTypeLookup(ctx context.Context, classes ClassSource, project *config.Project) *typeLookup {
	return &typeLookup{ctx: ctx, classes: classes, project: project, cache: map[string]*model.ClassFact{}}
}

// resolve prefers a candidate under the project's group id, then one in the context
// package, then the first declared.
func (l *typeLookup) resolve(simpleName, pkg string) *model.ClassFact {
	if fact, ok := l.cache[simpleName]; ok {
		return fact
	}
	candidates, err := l.classes.FindBySimpleName(l.ctx, l.project.Name, simpleName)
	var pick *model.ClassFact
	if err == nil && len(candidates) > 0 {
		pick = candidates[0]
		for _, c := range candidates {
			if c.Package == pkg {
				pick = c
				break
			}
		}
		if l.project.GroupID != "" && !strings.HasPrefix(pick.Package, l.project.GroupID) {
			for _, c := range candidates {
				if strings.HasPrefix(c.Package, l.project.GroupID) {
					pick = c
					break
				}
			}
		}
	}
	l.cache[simpleName] = pick
	return pick
}

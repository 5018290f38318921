package contextaware

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/retrieval"
	"go.uber.org/zap"
)

const (
	metaImportStatement = "import_statement"
	sourceErrorAnalysis = "error_analysis"
)

type symbolKind int

const (
	symbolClass symbolKind = iota
	symbolMethod
	symbolVoidStub
)

// missingSymbol is a class or method a diagnostic says could not be resolved. Owner is
// the class a method was looked up on, when the diagnostic names it.
type missingSymbol struct {
	Name  string
	Owner string
	Kind  symbolKind
}

var (
	missingClassRegex  = regexp.MustCompile(`symbol:\s*class\s+(\w+)`)
	missingMethodRegex = regexp.MustCompile(`symbol:\s*method\s+(\w+)\([^)\n]*\)(?:\s*\n\s*location:\s*(?:class|interface|variable \w+ of type)\s+([\w.$<>]+))?`)
	voidTypeRegex      = regexp.MustCompile(`'?void'? type not allowed here`)

	classNotFoundRegex = regexp.MustCompile(`(?:ClassNotFoundException|NoClassDefFoundError):?\s*([\w.$/]+)`)
	noSuchMethodRegex  = regexp.MustCompile(`NoSuchMethod(?:Error|Exception):?\s*'?(?:[\w.$\[\]<>]+\s+)?([\w$]+(?:\.[\w$]+)*)\.([\w$<>]+)`)
)

var junitAssertions = map[string]bool{
	"assertEquals": true, "assertNotEquals": true, "assertTrue": true, "assertFalse": true,
	"assertNull": true, "assertNotNull": true, "assertThrows": true, "assertSame": true,
	"assertNotSame": true, "assertArrayEquals": true, "assertAll": true,
	"assertDoesNotThrow": true, "fail": true,
}

// Enhancer turns compile and runtime diagnostics into extra context items.
type Enhancer struct {
	classes ClassSource
	known   *KnownTypes
	libs    *retrieval.LibraryTable
	logger  *zap.Logger
}

func NewEnhancer(classes ClassSource, known *KnownTypes, libs *retrieval.LibraryTable, logger *zap.Logger) *Enhancer {
	if known == nil {
		known = DefaultKnownTypes()
	}
	if libs == nil {
		libs = retrieval.DefaultLibraries()
	}
	return &Enhancer{classes: classes, known: known, libs: libs, logger: logger}
}

// Enhance returns existing followed by any new items derived from the diagnostic.
// Items whose content is already present are dropped.
func (e *Enhancer) Enhance(ctx context.Context, project, diagnostic string, class model.ErrorClass, existing []model.ContextItem) []model.ContextItem {
	var symbols []missingSymbol
	if class == model.ErrorRuntime {
		symbols = runtimeSymbols(diagnostic)
	} else {
		symbols = compileSymbols(diagnostic)
	}

	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[item.Content] = true
	}
	out := append([]model.ContextItem(nil), existing...)
	added := 0
	for _, sym := range symbols {
		item, ok := e.contextFor(ctx, project, sym)
		if !ok || seen[item.Content] {
			continue
		}
		seen[item.Content] = true
		out = append(out, item)
		added++
	}
	if added > 0 {
		e.logger.Info("Added error-driven context",
			zap.String("error_class", string(class)),
			zap.Int("symbols", len(symbols)),
			zap.Int("added", added))
	}
	return out
}

func compileSymbols(diagnostic string) []missingSymbol {
	var out []missingSymbol
	for _, m := range missingClassRegex.FindAllStringSubmatch(diagnostic, -1) {
		out = append(out, missingSymbol{Name: m[1], Kind: symbolClass})
	}
	for _, m := range missingMethodRegex.FindAllStringSubmatch(diagnostic, -1) {
		out = append(out, missingSymbol{Name: m[1], Owner: simpleName(m[2]), Kind: symbolMethod})
	}
	if voidTypeRegex.MatchString(diagnostic) {
		out = append(out, missingSymbol{Name: "void", Kind: symbolVoidStub})
	}
	return dedupeSymbols(out)
}

func runtimeSymbols(diagnostic string) []missingSymbol {
	var out []missingSymbol
	for _, m := range classNotFoundRegex.FindAllStringSubmatch(diagnostic, -1) {
		out = append(out, missingSymbol{Name: simpleName(strings.ReplaceAll(m[1], "/", ".")), Kind: symbolClass})
	}
	for _, m := range noSuchMethodRegex.FindAllStringSubmatch(diagnostic, -1) {
		out = append(out, missingSymbol{Name: m[2], Owner: simpleName(m[1]), Kind: symbolMethod})
	}
	return dedupeSymbols(out)
}

func simpleName(name string) string {
	if i := strings.Index(name, "<"); i >= 0 {
		name = name[:i]
	}
	name = name[strings.LastIndex(name, ".")+1:]
	if i := strings.Index(name, "$"); i >= 0 {
		name = name[:i]
	}
	return name
}

func dedupeSymbols(symbols []missingSymbol) []missingSymbol {
	seen := map[missingSymbol]bool{}
	out := symbols[:0]
	for _, s := range symbols {
		if s.Name == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (e *Enhancer) contextFor(ctx context.Context, project string, sym missingSymbol) (model.ContextItem, bool) {
	switch sym.Kind {
	case symbolClass:
		if fact := e.localClass(ctx, project, sym.Name); fact != nil {
			return classItem(fact), true
		}
		if fqn, ok := e.qualifiedName(sym.Name); ok {
			return importSuggestion(sym.Name, fqn), true
		}
	case symbolMethod:
		if sym.Owner != "" {
			if fact := e.localClass(ctx, project, sym.Owner); fact != nil {
				if m, ok := fact.FindMethod(sym.Name); ok {
					return methodItem(fact, m), true
				}
				return classItem(fact), true
			}
		}
		if junitAssertions[sym.Name] {
			return assertionImport(sym.Name), true
		}
	case symbolVoidStub:
		return model.NewContextItem(strings.Join([]string{
			"A void method was used where a value is expected.",
			"Do not stub void methods with when(...).thenReturn(...).",
			"Use doNothing().when(mock).method(args) or doThrow(...).when(mock).method(args), and verify(mock).method(args) to check the call.",
		}, "\n"), map[string]string{
			model.MetaType:   model.ItemErrorEnhanced,
			model.MetaSource: sourceErrorAnalysis,
		}, 0), true
	}
	return model.ContextItem{}, false
}

func (e *Enhancer) localClass(ctx context.Context, project, name string) *model.ClassFact {
	if e.classes == nil {
		return nil
	}
	facts, err := e.classes.FindBySimpleName(ctx, project, name)
	if err != nil {
		e.logger.Warn("Class lookup failed", zap.String("class", name), zap.Error(err))
		return nil
	}
	if len(facts) == 0 {
		return nil
	}
	return facts[0]
}

func (e *Enhancer) qualifiedName(name string) (string, bool) {
	if fqn, ok := e.known.QualifiedName(name); ok {
		return fqn, true
	}
	if lib, ok := e.libs.Lookup(name); ok {
		return lib.FQN, true
	}
	return "", false
}

func classItem(fact *model.ClassFact) model.ContextItem {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Class: %s\n", fact.FQN)
	if len(fact.Constructors) > 0 {
		sb.WriteString("Constructors:\n")
		for _, c := range fact.Constructors {
			sb.WriteString(c.Signature(fact.SimpleName))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Methods:\n")
	sigs := make([]string, 0, len(fact.Methods))
	for _, m := range fact.Methods {
		sigs = append(sigs, m.Signature())
	}
	sb.WriteString(strings.Join(sigs, "\n"))
	return model.NewContextItem(sb.String(), map[string]string{
		model.MetaType:      model.ItemErrorEnhanced,
		model.MetaClassName: fact.FQN,
		model.MetaSource:    sourceErrorAnalysis,
	}, 0)
}

func methodItem(fact *model.ClassFact, m *model.MethodFact) model.ContextItem {
	return model.NewContextItem("Method signature: "+m.Signature(), map[string]string{
		model.MetaType:       model.ItemErrorEnhanced,
		model.MetaClassName:  fact.FQN,
		model.MetaMethodName: m.Name,
		model.MetaSource:     sourceErrorAnalysis,
	}, 0)
}

func importSuggestion(name, fqn string) model.ContextItem {
	content := fmt.Sprintf("Missing import for %s:\nAdd this import statement: import %s;\nClass: %s\nFull package: %s",
		name, fqn, name, fqn)
	return model.NewContextItem(content, map[string]string{
		model.MetaType:      model.ItemImportSuggestion,
		model.MetaClassName: name,
		metaImportStatement: "import " + fqn + ";",
		model.MetaSource:    sourceErrorAnalysis,
	}, 0)
}

func assertionImport(method string) model.ContextItem {
	content := fmt.Sprintf("Missing JUnit assertion method: %s\n"+
		"Add this import statement: import static org.junit.jupiter.api.Assertions.*;\n"+
		"This will provide access to: %s, assertEquals, assertTrue, assertFalse, etc.\n"+
		"Alternative: import static org.junit.jupiter.api.Assertions.%s;", method, method, method)
	return model.NewContextItem(content, map[string]string{
		model.MetaType:       model.ItemImportSuggestion,
		model.MetaMethodName: method,
		metaImportStatement:  "import static org.junit.jupiter.api.Assertions.*;",
		model.MetaSource:     sourceErrorAnalysis,
	}, 0)
}

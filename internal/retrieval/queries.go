package retrieval

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/util"
)

// Target identifies the method under test. Signature and Body are filled from the
// type index when left empty.
type Target struct {
	Project     string
	ClassFQN    string
	MethodName  string
	Signature   string
	Body        string
	Description string
}

// ParseTargetID splits "pkg.Class#method". Without '#' the whole id is the method name.
func ParseTargetID(id string) (classFQN, method string) {
	if i := strings.Index(id, "#"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

func (t Target) ClassName() string {
	if i := strings.LastIndex(t.ClassFQN, "."); i >= 0 {
		return t.ClassFQN[i+1:]
	}
	return t.ClassFQN
}

func (t Target) Package() string {
	if i := strings.LastIndex(t.ClassFQN, "."); i >= 0 {
		return t.ClassFQN[:i]
	}
	return ""
}

// querySet collects queries in insertion order without duplicates.
type querySet struct {
	seen  map[string]bool
	items []string
}

func newQuerySet() *querySet {
	return &querySet{seen: map[string]bool{}}
}

func (q *querySet) add(queries ...string) {
	for _, s := range queries {
		s = strings.TrimSpace(s)
		if s == "" || q.seen[s] {
			continue
		}
		q.seen[s] = true
		q.items = append(q.items, s)
	}
}

func (q *querySet) list() []string {
	return q.items
}

// BaseQueries are the name-driven queries: method, class+method, class, description and
// a few action phrasings of the method name.
func BaseQueries(t Target) []string {
	qs := newQuerySet()
	qs.add(t.MethodName)
	if class := t.ClassName(); class != "" {
		qs.add(class+" "+t.MethodName, class)
	}
	qs.add(t.Description)
	if t.MethodName != "" {
		qs.add("highlight "+t.MethodName, "process "+t.MethodName, "handle "+t.MethodName)
	}
	if sig := t.Signature; sig != "" {
		info := util.ParseJavaSignature(sig, t.ClassName())
		qs.add(util.NormalizeSignatureForEmbedding(info))
	}
	return qs.list()
}

// ClassDefinitionQueries target the full declaration of the class under test and the
// way it gets constructed.
func ClassDefinitionQueries(class string) []string {
	if class == "" {
		return nil
	}
	return []string{
		"record " + class,
		"class " + class,
		"public class " + class,
		"@Component class " + class,
		"@Service class " + class,
		"@Repository class " + class,
		"@Controller class " + class,
		"@RequiredArgsConstructor",
		"@AllArgsConstructor",
		"constructor " + class,
		"public " + class + "(",
		"@Autowired",
		"private final",
	}
}

// TypeQueries expands one referenced type into declaration, constructor and
// injection variants. The resolver adds the qualified name and package when it knows
// the type; the library table adds its import line.
func TypeQueries(typeName, contextPackage string, types TypeLookup, libs *LibraryTable) []string {
	qs := newQuerySet()
	qs.add(typeName)
	qs.add(declarationVariants(typeName)...)
	qs.add(
		"constructor "+typeName,
		"public "+typeName+"(",
		typeName+"(",
		"new "+typeName+"(",
		"@Component class "+typeName,
		"@Service class "+typeName,
		"@Autowired "+typeName,
	)
	if types != nil {
		if res := types.Resolve(typeName, contextPackage); res.Found() {
			qs.add(res.Class.FQN, "package "+res.Class.Package)
			if res.Class.Kind == model.KindRecord {
				qs.add(typeName + " record")
			}
		}
	}
	if libs != nil {
		if imp := libs.ImportStatement(typeName); imp != "" {
			qs.add(imp)
		}
	}
	return qs.list()
}

func declarationVariants(name string) []string {
	return []string{
		"class " + name,
		"public class " + name,
		"record " + name,
		"public record " + name,
		"interface " + name,
		"enum " + name,
	}
}

var (
	callRegex       = regexp.MustCompile(`\b([A-Za-z_]\w*)\.(\w+)\s*\(`)
	typeRefRegex    = regexp.MustCompile(`\b([A-Z][A-Za-z0-9_]*)\b`)
	nonDependencies = map[string]bool{
		"this": true, "super": true, "System": true, "Math": true, "String": true,
		"Objects": true, "Arrays": true, "Collections": true, "List": true, "Map": true,
		"Set": true, "Optional": true, "Integer": true, "Long": true, "Double": true,
	}
)

// MethodCall is an "object.method(" occurrence in a method body.
type MethodCall struct {
	Receiver string
	Method   string
}

// MethodCalls returns the receiver calls in body, first occurrence order.
func MethodCalls(body string) []MethodCall {
	seen := map[MethodCall]bool{}
	var out []MethodCall
	for _, m := range callRegex.FindAllStringSubmatch(body, -1) {
		call := MethodCall{Receiver: m[1], Method: m[2]}
		if nonDependencies[call.Receiver] || seen[call] {
			continue
		}
		seen[call] = true
		out = append(out, call)
	}
	return out
}

// InferClassNames guesses the class names behind a lower-case receiver such as
// pdfHighlighter: the capitalized form (PdfHighlighter), the form with a leading
// acronym upper-cased (PDFHighlighter) and, for single-word verb-like names, the
// "-er" form.
func InferClassNames(receiver string) []string {
	if receiver == "" || !unicode.IsLower(rune(receiver[0])) {
		return nil
	}
	qs := newQuerySet()
	capitalized := strings.ToUpper(receiver[:1]) + receiver[1:]
	qs.add(capitalized)
	if acr := acronymForm(receiver); acr != "" {
		qs.add(acr)
	}
	if agent := agentNoun(receiver); agent != "" {
		qs.add(strings.ToUpper(agent[:1]) + agent[1:])
	}
	return qs.list()
}

// agentNoun turns a single-word verb-like receiver into its "-er" form
// (highlight -> highlighter, parse -> parser).
func agentNoun(word string) string {
	if strings.IndexFunc(word, unicode.IsUpper) >= 0 {
		return ""
	}
	for _, suffix := range []string{"er", "or", "y", "s", "ion"} {
		if strings.HasSuffix(word, suffix) {
			return ""
		}
	}
	if strings.HasSuffix(word, "e") {
		return word + "r"
	}
	return word + "er"
}

var knownAcronyms = []string{"pdf", "xml", "json", "html", "http", "url", "uri", "sql", "csv", "dto", "dao", "api", "jwt", "io", "ui", "id"}

func acronymForm(receiver string) string {
	// longest prefix first so "html" wins over shorter prefixes
	best := ""
	for _, a := range knownAcronyms {
		if strings.HasPrefix(receiver, a) && len(a) > len(best) {
			rest := receiver[len(a):]
			if rest == "" || unicode.IsUpper(rune(rest[0])) {
				best = a
			}
		}
	}
	if best == "" {
		return ""
	}
	return strings.ToUpper(best) + receiver[len(best):]
}

// DependencyQueries scans a method body for receiver calls and capitalized identifiers
// and expands each into declaration queries. It favors recall: some names will not be
// project types.
func DependencyQueries(body string) []string {
	if body == "" {
		return nil
	}
	qs := newQuerySet()
	for _, call := range MethodCalls(body) {
		qs.add(call.Receiver+"."+call.Method, "public "+call.Method, "void "+call.Method)
		for _, class := range InferClassNames(call.Receiver) {
			qs.add(
				"class "+class,
				"public class "+class,
				"record "+class,
				"interface "+class,
				"@Component class "+class,
			)
		}
	}
	for _, ref := range typeRefRegex.FindAllString(body, -1) {
		if len(ref) <= 2 || util.IsExcludedType(ref) || nonDependencies[ref] {
			continue
		}
		qs.add(declarationVariants(ref)...)
	}
	return qs.list()
}

// LocalImports returns the imports of fact that name project classes known to types,
// skipping static and wildcard imports.
func LocalImports(fact *model.ClassFact, types TypeLookup) []*model.ClassFact {
	if fact == nil || types == nil {
		return nil
	}
	var out []*model.ClassFact
	for _, imp := range fact.Imports {
		if strings.HasPrefix(imp, "static ") || strings.HasSuffix(imp, ".*") {
			continue
		}
		if c, ok := types.Lookup(imp); ok {
			out = append(out, c)
		}
	}
	return out
}

// ImportedClassQueries forces queries for every project-local import of the class
// under test.
func ImportedClassQueries(imports []*model.ClassFact) []string {
	qs := newQuerySet()
	for _, c := range imports {
		qs.add(
			c.SimpleName,
			"class "+c.SimpleName,
			"public class "+c.SimpleName,
			"record "+c.SimpleName,
			"public record "+c.SimpleName,
			c.FQN,
		)
	}
	return qs.list()
}

package retrieval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/util"
)

// Param is one constructor parameter.
type Param struct {
	Type string
	Name string
}

func (p Param) String() string {
	return strings.TrimSpace(p.Type + " " + p.Name)
}

// ConstructorInfo describes one way to build an instance.
type ConstructorInfo struct {
	Params    []Param
	IsDefault bool
	IsPublic  bool
	// Lombok is the annotation that generates the constructor, if any.
	Lombok string
}

// ClassAnalysis is the construction and injection profile of a class.
type ClassAnalysis struct {
	Name         string
	Package      string
	IsRecord     bool
	IsComponent  bool
	Annotations  []string
	Constructors []ConstructorInfo
	Dependencies []string
}

var (
	componentAnnotations = []string{"Component", "Service", "Repository", "Controller", "RestController"}
	autowiredFieldRegex  = regexp.MustCompile(`@Autowired\s+(?:private\s+|protected\s+|public\s+)?(?:final\s+)?([\w<>,\s]+?)\s+\w+\s*;`)
)

// AnalyzeClass derives constructors and dependencies from parsed facts. Records use
// their components, Lombok constructor annotations derive from fields, otherwise the
// declared constructors are used, falling back to the implicit default one.
func AnalyzeClass(fact *model.ClassFact) *ClassAnalysis {
	a := &ClassAnalysis{
		Name:        fact.SimpleName,
		Package:     fact.Package,
		IsRecord:    fact.Kind == model.KindRecord,
		Annotations: fact.Annotations,
	}
	for _, ann := range componentAnnotations {
		if fact.HasAnnotation(ann) {
			a.IsComponent = true
			break
		}
	}
	a.Constructors = analyzeConstructors(fact)
	a.Dependencies = analyzeDependencies(fact, a)
	return a
}

func analyzeConstructors(fact *model.ClassFact) []ConstructorInfo {
	switch {
	case fact.Kind == model.KindRecord:
		return []ConstructorInfo{{Params: splitParams(fact.RecordComponents), IsPublic: true}}
	case fact.HasAnnotation("RequiredArgsConstructor"):
		return []ConstructorInfo{{Params: fieldParams(fact, true), IsPublic: true, Lombok: "@RequiredArgsConstructor"}}
	case fact.HasAnnotation("AllArgsConstructor"):
		return []ConstructorInfo{{Params: fieldParams(fact, false), IsPublic: true, Lombok: "@AllArgsConstructor"}}
	}

	var out []ConstructorInfo
	for _, c := range fact.Constructors {
		out = append(out, ConstructorInfo{
			Params:   splitParams(c.Parameters),
			IsPublic: c.AccessModifier == "public",
		})
	}
	if len(out) == 0 && fact.Kind != model.KindInterface {
		out = append(out, ConstructorInfo{IsDefault: true, IsPublic: true})
	}
	return out
}

// fieldParams lists instance fields as constructor parameters; finalOnly keeps the
// private final ones, matching @RequiredArgsConstructor.
func fieldParams(fact *model.ClassFact, finalOnly bool) []Param {
	var params []Param
	for _, f := range fact.Fields {
		if f.IsStatic {
			continue
		}
		if finalOnly && !(f.IsFinal && f.AccessModifier == "private") {
			continue
		}
		params = append(params, Param{Type: f.Type, Name: f.Name})
	}
	return params
}

func splitParams(raw []string) []Param {
	params := make([]Param, 0, len(raw))
	for _, p := range raw {
		info := util.ParseJavaSignature("x("+p+")", "")
		if len(info.Parameters) == 1 {
			params = append(params, Param{Type: info.Parameters[0].Type, Name: info.Parameters[0].Name})
		}
	}
	return params
}

// analyzeDependencies collects collaborator types: injected fields, constructor
// parameters and classes inferred from receiver calls in method bodies.
func analyzeDependencies(fact *model.ClassFact, a *ClassAnalysis) []string {
	qs := newQuerySet()
	addType := func(t string) {
		for _, name := range util.UnwrapGenerics(t) {
			if !util.IsExcludedType(name) && name != fact.SimpleName {
				qs.add(name)
			}
		}
	}

	if a.Constructors != nil && a.Constructors[0].Lombok != "" {
		for _, p := range a.Constructors[0].Params {
			addType(p.Type)
		}
	}
	for _, m := range autowiredFieldRegex.FindAllStringSubmatch(fact.Source, -1) {
		addType(m[1])
	}
	for _, c := range fact.Constructors {
		for _, p := range splitParams(c.Parameters) {
			addType(p.Type)
		}
	}
	for _, m := range fact.Methods {
		for _, call := range MethodCalls(m.Body) {
			if typ := fieldType(fact, call.Receiver); typ != "" {
				addType(typ)
			} else if names := InferClassNames(call.Receiver); len(names) > 0 {
				qs.add(names[0])
			}
		}
	}
	return qs.list()
}

// Format renders the analysis as hint lines for the prompt.
func (a *ClassAnalysis) Format() string {
	var lines []string
	kind := "class"
	if a.IsRecord {
		kind = "record"
	}
	lines = append(lines, fmt.Sprintf("SMART ANALYSIS: %s %s", kind, a.Name))
	lines = append(lines, "Package: "+a.Package)
	if len(a.Annotations) > 0 {
		lines = append(lines, "Annotations: "+strings.Join(a.Annotations, ", "))
	}
	for i, c := range a.Constructors {
		if c.IsDefault || len(c.Params) == 0 {
			lines = append(lines, fmt.Sprintf("Constructor %d: %s() - default constructor", i+1, a.Name))
		} else {
			params := make([]string, len(c.Params))
			for j, p := range c.Params {
				params[j] = p.String()
			}
			lines = append(lines, fmt.Sprintf("Constructor %d: %s(%s)", i+1, a.Name, strings.Join(params, ", ")))
		}
		if c.Lombok != "" {
			lines = append(lines, "  Generated by "+c.Lombok)
		}
		if !c.IsPublic {
			lines = append(lines, "  Not public")
		}
	}
	if len(a.Dependencies) > 0 {
		lines = append(lines, "Dependencies: "+strings.Join(a.Dependencies, ", "))
	}
	if a.IsRecord {
		lines = append(lines, "RECORD CLASS: Use exact constructor parameters!")
	}
	if a.IsComponent {
		lines = append(lines, "SPRING COMPONENT: Use @Mock for dependencies and @InjectMocks for this class!")
	}
	if len(a.Constructors) > 0 && a.Constructors[0].Lombok == "@RequiredArgsConstructor" {
		lines = append(lines, "LOMBOK @RequiredArgsConstructor: Cannot use no-arg constructor!")
	}
	return strings.Join(lines, "\n")
}

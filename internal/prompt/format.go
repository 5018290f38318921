package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/armchr/testgen/internal/model"
)

const (
	classSnippetLimit  = 1500
	classPreviewLimit  = 1000
	methodSnippetLimit = 800
	methodPreviewLimit = 400
)

var contextAwareTypes = map[string]bool{
	model.ItemCoreContext:       true,
	model.ItemClassInfo:         true,
	model.ItemImports:           true,
	model.ItemDependencyContext: true,
}

// IsContextAware reports whether items came from the static-analysis generator, judged
// by the first item.
func IsContextAware(items []model.ContextItem) bool {
	return len(items) > 0 && contextAwareTypes[items[0].Type()]
}

// FormatContext renders context items for a prompt.
func FormatContext(items []model.ContextItem) string {
	if len(items) == 0 {
		return ""
	}
	if IsContextAware(items) {
		return formatContextAware(items)
	}
	return formatRAG(items)
}

func formatContextAware(items []model.ContextItem) string {
	var out []string
	for i, item := range items {
		n := i + 1
		switch item.Type() {
		case model.ItemCoreContext:
			class := item.Metadata[model.MetaClassName]
			class = class[strings.LastIndex(class, ".")+1:]
			out = append(out, fmt.Sprintf("%d. %s.%s:", n, class, item.Metadata[model.MetaMethodName]))
		case model.ItemClassInfo:
			out = append(out, fmt.Sprintf("%d. Class Information:", n))
		case model.ItemDependencyContext:
			out = append(out, fmt.Sprintf("%d. Dependencies:", n))
		case model.ItemImports:
			out = append(out, fmt.Sprintf("%d. Required Imports:", n))
		default:
			out = append(out, fmt.Sprintf("%d. %s:", n, headingFor(item)))
		}
		out = append(out, indent(item.Content, "   "))
	}
	return strings.Join(out, "\n")
}

func headingFor(item model.ContextItem) string {
	switch item.Type() {
	case model.ItemErrorEnhanced:
		return "Error Analysis"
	case model.ItemImportSuggestion:
		return "Import Suggestion"
	case model.ItemSmartAnalysis, model.ItemSmartAnalysisDependency:
		return "Smart Analysis of " + item.Metadata[model.MetaClassName]
	case model.ItemExternalLibrary:
		return "External Library " + item.Metadata[model.MetaClassName]
	}
	return "Context"
}

// snippetHints collects the constructor and dependency facts visible in retrieved text.
type snippetHints struct {
	imports      map[string]string
	constructors []string
	dependencies []string
	libraries    []string
	seen         map[string]bool
}

func (h *snippetHints) add(list *[]string, hint string) {
	if h.seen[hint] {
		return
	}
	h.seen[hint] = true
	*list = append(*list, hint)
}

func formatRAG(items []model.ContextItem) string {
	hints := &snippetHints{imports: map[string]string{}, seen: map[string]bool{}}
	var out []string
	for i, item := range items {
		n := i + 1
		className := item.Metadata[model.MetaClassName]
		if pkg := item.Metadata[model.MetaPackage]; className != "" && pkg != "" {
			hints.imports[className] = pkg
		}
		analyzeSnippet(item.Content, className, hints)

		switch item.Type() {
		case model.ItemClass:
			out = append(out,
				fmt.Sprintf("%d. %s (Class):", n, className),
				"   Package: "+item.Metadata[model.MetaPackage],
				indent(preview(item.Content, classSnippetLimit, classPreviewLimit), "   "))
		case model.ItemMethod:
			out = append(out, fmt.Sprintf("%d. %s.%s:", n, className, item.Metadata[model.MetaMethodName]))
			if sig := signatureLines(item.Content); sig != "" {
				out = append(out, "   Method: "+sig)
			}
			out = append(out, "   Implementation: "+preview(item.Content, methodSnippetLimit, methodPreviewLimit))
		case model.ItemExternalLibrary:
			hints.add(&hints.libraries, fmt.Sprintf("External library: %s - %s", className,
				strings.ReplaceAll(item.Content, "\n", " ")))
			out = append(out, fmt.Sprintf("%d. %s:", n, headingFor(item)), indent(item.Content, "   "))
		default:
			out = append(out, fmt.Sprintf("%d. %s:", n, headingFor(item)), indent(item.Content, "   "))
		}
	}

	if len(hints.imports) > 0 {
		names := make([]string, 0, len(hints.imports))
		for name := range hints.imports {
			names = append(names, name)
		}
		sort.Strings(names)
		out = append(out, "", "=== CRITICAL IMPORT INFORMATION ===",
			"ATTENTION: Use the EXACT package paths shown below for imports!")
		for _, name := range names {
			out = append(out, fmt.Sprintf("- %s: import %s.%s;", name, hints.imports[name], name))
		}
		out = append(out,
			"DO NOT assume classes are in the same package as the target class!",
			"Always use the package information provided above!")
	}
	out = appendSection(out, "CONSTRUCTOR INFORMATION", hints.constructors)
	out = appendSection(out, "DEPENDENCY INFORMATION", hints.dependencies)
	out = appendSection(out, "EXTERNAL LIBRARY INFORMATION", hints.libraries)
	return strings.Join(out, "\n")
}

func appendSection(out []string, title string, lines []string) []string {
	if len(lines) == 0 {
		return out
	}
	out = append(out, "", "=== "+title+" ===")
	for _, l := range lines {
		out = append(out, "  "+l)
	}
	return out
}

var (
	finalFieldRegex   = regexp.MustCompile(`private\s+final\s+([\w.<>, ?\[\]]+?)\s+(\w+)\s*[;=]`)
	privateFieldRegex = regexp.MustCompile(`private\s+([\w.<>\[\]]+)\s+(\w+)\s*[;=]`)
	methodCallRegex   = regexp.MustCompile(`\b([a-z]\w*)\.(\w+)\s*\(`)
)

var nonDependencyReceivers = map[string]bool{"this": true, "super": true}

// analyzeSnippet scans retrieved text for record components, public constructors,
// final fields and calls on collaborator objects.
func analyzeSnippet(content, className string, hints *snippetHints) {
	if content == "" || className == "" {
		return
	}
	name := regexp.QuoteMeta(className)
	if m := regexp.MustCompile(`\brecord\s+` + name + `\s*\(([^)]*)\)`).FindStringSubmatch(content); m != nil {
		params := strings.TrimSpace(m[1])
		if params == "" {
			hints.add(&hints.constructors, className+" is a record class with no parameters")
		} else {
			count := len(strings.Split(params, ","))
			hints.add(&hints.constructors, fmt.Sprintf("%s is a record class with %d parameters: %s", className, count, params))
		}
	}
	if m := regexp.MustCompile(`public\s+` + name + `\s*\(([^)]*)\)`).FindStringSubmatch(content); m != nil {
		if params := strings.TrimSpace(m[1]); params != "" {
			hints.add(&hints.constructors, fmt.Sprintf("%s has constructor with parameters: %s", className, params))
		} else {
			hints.add(&hints.constructors, className+" has default constructor")
		}
	}

	if finals := finalFieldRegex.FindAllStringSubmatch(content, -1); len(finals) > 0 {
		fields := make([]string, 0, len(finals))
		for _, f := range finals {
			fields = append(fields, strings.TrimSpace(f[1])+" "+f[2])
		}
		hints.add(&hints.constructors, fmt.Sprintf("%s has final fields: %s", className, strings.Join(fields, ", ")))
		hints.add(&hints.dependencies, className+" requires constructor parameters for final fields")
	}
	if privates := privateFieldRegex.FindAllStringSubmatch(content, -1); len(privates) > 0 {
		var fields []string
		for _, f := range privates {
			if f[1] == "final" || f[1] == "static" {
				continue
			}
			fields = append(fields, f[1]+" "+f[2])
		}
		if len(fields) > 0 {
			hints.add(&hints.dependencies, fmt.Sprintf("%s has private fields: %s - consider mocking if they are dependencies",
				className, strings.Join(fields, ", ")))
		}
	}

	seen := map[string]bool{}
	var receivers []string
	for _, m := range methodCallRegex.FindAllStringSubmatch(content, -1) {
		if nonDependencyReceivers[m[1]] || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		receivers = append(receivers, m[1])
	}
	if len(receivers) > 0 {
		hints.add(&hints.dependencies, fmt.Sprintf("%s calls methods on objects: %s - these may be dependencies that need mocking",
			className, strings.Join(receivers, ", ")))
	}
}

func preview(content string, limit, cut int) string {
	if len(content) <= limit {
		return content
	}
	return content[:cut] + "..."
}

func signatureLines(content string) string {
	lines := strings.SplitN(content, "\n", 4)
	var parts []string
	for _, line := range lines[:min(3, len(lines))] {
		if s := strings.TrimSpace(line); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

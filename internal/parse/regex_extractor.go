package parse

import (
	"regexp"
	"strings"

	"github.com/armchr/testgen/internal/model"
)

var (
	packageRegex = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)
	importRegex  = regexp.MustCompile(`(?m)^\s*import\s+(static\s+)?([\w.]+(?:\.\*)?)\s*;`)

	// One pattern per kind, tried in priority order.
	declRegexes = []struct {
		kind  model.Kind
		regex *regexp.Regexp
	}{
		{model.KindRecord, regexp.MustCompile(`(?m)^((?:@[\w.]+(?:\([^)]*\))?\s+)*)((?:public|protected|private|static|final|sealed|\s)*)record\s+(\w+)\s*(?:<[^>{]*>)?\s*\(([^)]*)\)`)},
		{model.KindClass, regexp.MustCompile(`(?m)^((?:@[\w.]+(?:\([^)]*\))?\s+)*)((?:public|protected|private|static|final|abstract|sealed|non-sealed|\s)*)class\s+(\w+)`)},
		{model.KindInterface, regexp.MustCompile(`(?m)^((?:@[\w.]+(?:\([^)]*\))?\s+)*)((?:public|protected|private|static|sealed|\s)*)interface\s+(\w+)`)},
		{model.KindEnum, regexp.MustCompile(`(?m)^((?:@[\w.]+(?:\([^)]*\))?\s+)*)((?:public|protected|private|static|\s)*)enum\s+(\w+)`)},
	}

	annotationNameRegex = regexp.MustCompile(`@[\w.]+(?:\([^)]*\))?`)
	methodRegex         = regexp.MustCompile(`(?m)^\s*((?:public|protected|private|static|final|abstract|synchronized|default|\s)*)(<[^>]+>\s+)?([\w.<>\[\], ?]+?)\s+(\w+)\s*\(([^)]*)\)\s*(?:throws\s+([\w.,\s]+?))?\s*[{;]`)
	fieldRegex          = regexp.MustCompile(`(?m)^\s*((?:public|protected|private|static|final|transient|volatile|\s)+)([\w.<>\[\], ?]+?)\s+(\w+)\s*(?:=[^;]*)?;`)
)

// ParseWithRegex extracts the primary type of a file with pattern matching. It is a
// fallback for sources the grammar cannot handle and recovers less detail: method
// bodies are located by brace balancing and nested types are not distinguished.
func ParseWithRegex(path, src string) []*model.ClassFact {
	clean := stripComments(src)

	var fact *model.ClassFact
	for _, d := range declRegexes {
		m := d.regex.FindStringSubmatchIndex(clean)
		if m == nil {
			continue
		}
		groups := submatches(clean, m)
		fact = &model.ClassFact{
			SimpleName:     groups[3],
			Kind:           d.kind,
			AccessModifier: modifierAccess(groups[2]),
			Annotations:    annotationNameRegex.FindAllString(groups[1], -1),
		}
		if d.kind == model.KindClass && strings.Contains(groups[2], "abstract") {
			fact.Kind = model.KindAbstractClass
		}
		if d.kind == model.KindRecord {
			for _, p := range splitTopLevel(groups[4]) {
				if p = collapseSpace(annotationTextRegex.ReplaceAllString(p, "")); p != "" {
					fact.RecordComponents = append(fact.RecordComponents, p)
				}
			}
			fact.Constructors = append(fact.Constructors, model.ConstructorFact{
				AccessModifier: fact.AccessModifier,
				Parameters:     fact.RecordComponents,
			})
		}
		break
	}
	if fact == nil {
		return nil
	}

	if m := packageRegex.FindStringSubmatch(clean); m != nil {
		fact.Package = m[1]
	}
	for _, m := range importRegex.FindAllStringSubmatch(clean, -1) {
		imp := m[2]
		if m[1] != "" {
			imp = "static " + imp
		}
		fact.Imports = append(fact.Imports, imp)
	}
	fact.FQN = qualify(fact.Package, fact.SimpleName)
	fact.FilePath = path
	fact.Source = src

	ctorRegex := regexp.MustCompile(`(?m)^\s*((?:public|protected|private|\s)*)` + regexp.QuoteMeta(fact.SimpleName) + `\s*\(([^)]*)\)\s*(?:throws\s+([\w.,\s]+?))?\s*\{`)
	for _, m := range ctorRegex.FindAllStringSubmatch(clean, -1) {
		fact.Constructors = append(fact.Constructors, model.ConstructorFact{
			AccessModifier: modifierAccess(m[1]),
			Parameters:     splitParams(m[2]),
			Exceptions:     splitList(m[3]),
		})
	}

	for _, idx := range methodRegex.FindAllStringSubmatchIndex(clean, -1) {
		g := submatches(clean, idx)
		returnType := strings.TrimSpace(g[3])
		name := g[4]
		words := strings.Fields(returnType)
		if len(words) == 0 || name == fact.SimpleName || isControlKeyword(name) || isControlKeyword(words[0]) || isModifierWord(words[0]) {
			continue
		}
		method := model.MethodFact{
			Name:           name,
			AccessModifier: modifierAccess(g[1]),
			ReturnType:     returnType,
			Parameters:     splitParams(g[5]),
			Exceptions:     splitList(g[6]),
			IsStatic:       strings.Contains(g[1], "static"),
			IsAbstract:     strings.Contains(g[1], "abstract"),
			IsFinal:        strings.Contains(g[1], "final"),
		}
		if end := idx[1]; end > 0 && clean[end-1] == '{' {
			if close := matchBrace(clean, end-1); close > 0 {
				method.Body = clean[end-1 : close+1]
			}
		}
		fact.Methods = append(fact.Methods, method)
	}

	for _, m := range fieldRegex.FindAllStringSubmatch(clean, -1) {
		typeName := strings.TrimSpace(m[2])
		if typeName == "return" || typeName == "package" || typeName == "import" {
			continue
		}
		fact.Fields = append(fact.Fields, model.FieldFact{
			Name:           m[3],
			AccessModifier: modifierAccess(m[1]),
			Type:           typeName,
			IsStatic:       strings.Contains(m[1], "static"),
			IsFinal:        strings.Contains(m[1], "final"),
		})
	}

	return []*model.ClassFact{fact}
}

// statementKeywords start lines that can look like "<type> name(" but are statements.
var statementKeywords = map[string]bool{
	"return": true, "else": true, "throw": true, "new": true, "case": true,
	"yield": true, "assert": true, "await": true,
}

// ExtractMethodSource locates a method declaration by name in raw source and returns
// its full text, from the modifiers through the balanced closing brace. Call sites such
// as "return name(x);" are skipped.
func ExtractMethodSource(src, methodName string) (string, bool) {
	re := regexp.MustCompile(`(?m)^[ \t]*(?:@[\w.]+(?:\([^)]*\))?\s+)*((?:(?:public|protected|private|static|final|synchronized|abstract|default|native)\s+)*)([\w.<>\[\], ?]+?)\s+` + regexp.QuoteMeta(methodName) + `\s*\(`)
	for _, m := range re.FindAllStringSubmatchIndex(src, -1) {
		mods := src[m[2]:m[3]]
		typ := strings.TrimSpace(src[m[4]:m[5]])
		if first := strings.Fields(typ); len(first) == 0 || statementKeywords[first[0]] {
			continue
		}
		closeParen := matchParen(src, m[1]-1)
		if closeParen < 0 {
			continue
		}
		rest := strings.TrimLeft(src[closeParen+1:], " \t\r\n")
		switch {
		case strings.HasPrefix(rest, "{"), strings.HasPrefix(rest, "throws"):
			start := closeParen + 1 + strings.Index(src[closeParen+1:], "{")
			if start <= closeParen {
				continue
			}
			end := matchBrace(src, start)
			if end < 0 {
				return strings.TrimSpace(src[m[0]:]), true
			}
			return strings.TrimSpace(src[m[0] : end+1]), true
		case strings.HasPrefix(rest, ";") && (strings.Contains(mods, "abstract") || strings.Contains(mods, "native") || mods == ""):
			// abstract or interface method
			return strings.TrimSpace(src[m[0] : closeParen+1+strings.Index(src[closeParen+1:], ";")+1]), true
		}
	}
	return "", false
}

// matchParen returns the index of the parenthesis closing the one at open, or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		case '{', ';':
			return -1
		}
	}
	return -1
}

// matchBrace returns the index of the brace closing the one at open, skipping string
// and character literals, or -1 when unbalanced.
func matchBrace(s string, open int) int {
	depth := 0
	inString, inChar, escaped := false, false, false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && (inString || inChar):
			escaped = true
		case inString:
			if c == '"' {
				inString = false
			}
		case inChar:
			if c == '\'' {
				inChar = false
			}
		case c == '"':
			inString = true
		case c == '\'':
			inChar = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var (
	blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRegex  = regexp.MustCompile(`(?m)//[^\n"]*$`)
)

func stripComments(src string) string {
	src = blockCommentRegex.ReplaceAllString(src, "")
	return lineCommentRegex.ReplaceAllString(src, "")
}

func submatches(s string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if idx[2*i] >= 0 {
			out[i] = s[idx[2*i]:idx[2*i+1]]
		}
	}
	return out
}

func modifierAccess(mods string) string {
	for _, f := range strings.Fields(mods) {
		switch f {
		case "public", "protected", "private":
			return f
		}
	}
	return "package"
}

func splitParams(raw string) []string {
	var out []string
	for _, p := range splitTopLevel(raw) {
		p = collapseSpace(annotationTextRegex.ReplaceAllString(p, ""))
		p = strings.TrimPrefix(p, "final ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func isModifierWord(s string) bool {
	switch s {
	case "public", "protected", "private", "static", "final", "abstract", "synchronized", "default":
		return true
	}
	return false
}

func isControlKeyword(s string) bool {
	switch s {
	case "if", "for", "while", "switch", "catch", "synchronized", "try", "else", "do", "return", "throw", "new":
		return true
	}
	return false
}

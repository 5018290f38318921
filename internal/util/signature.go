package util

import (
	"regexp"
	"strings"
	"unicode"
)

// SignatureInfo holds parsed method signature information
type SignatureInfo struct {
	ClassName      string
	MethodName     string
	Parameters     []ParameterInfo
	ReturnType     string
	TypeParameters []string
}

// ParameterInfo holds parameter details
type ParameterInfo struct {
	Name string
	Type string
}

// excludedTypes are never treated as dependency types.
var excludedTypes = map[string]bool{
	"int": true, "long": true, "double": true, "float": true, "boolean": true,
	"char": true, "byte": true, "short": true, "void": true,
	"String": true, "Integer": true, "Long": true, "Double": true, "Float": true,
	"Boolean": true, "Character": true, "Byte": true, "Short": true, "Object": true,
}

// IsExcludedType reports whether name is a primitive, void, String, Object or a boxed primitive.
func IsExcludedType(name string) bool {
	return excludedTypes[name]
}

var annotationRegex = regexp.MustCompile(`@[\w.]+(\([^)]*\))?`)

// ParseJavaSignature parses a Java method or constructor signature.
// Example: "public User findByEmail(String email)" -> SignatureInfo
func ParseJavaSignature(signature, className string) SignatureInfo {
	info := SignatureInfo{ClassName: className}
	sig := strings.Join(strings.Fields(signature), " ")
	if sig == "" {
		return info
	}

	parenStart := strings.Index(sig, "(")
	if parenStart < 0 {
		return info
	}
	parenEnd := matchingParen(sig, parenStart)
	if parenEnd < 0 {
		parenEnd = len(sig)
	}

	for _, param := range splitParameters(sig[parenStart+1 : parenEnd]) {
		param = strings.TrimSpace(annotationRegex.ReplaceAllString(param, ""))
		if param == "" {
			continue
		}
		parts := splitTopLevelFields(param)
		parts = dropModifiers(parts)
		switch {
		case len(parts) >= 2:
			info.Parameters = append(info.Parameters, ParameterInfo{
				Name: parts[len(parts)-1],
				Type: strings.Join(parts[:len(parts)-1], " "),
			})
		case len(parts) == 1:
			info.Parameters = append(info.Parameters, ParameterInfo{Type: parts[0]})
		}
	}

	head := strings.TrimSpace(annotationRegex.ReplaceAllString(sig[:parenStart], ""))
	tokens := splitTopLevelFields(head)
	if len(tokens) == 0 {
		return info
	}
	info.MethodName = tokens[len(tokens)-1]
	tokens = tokens[:len(tokens)-1]

	var rest []string
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "<") {
			info.TypeParameters = append(info.TypeParameters, typeParameterNames(tok)...)
			continue
		}
		if isJavaModifier(tok) {
			continue
		}
		rest = append(rest, tok)
	}
	if len(rest) > 0 {
		info.ReturnType = rest[len(rest)-1]
	}
	return info
}

// ExtractParameterTypes returns the declared parameter types in order, as written.
func ExtractParameterTypes(signature string) []string {
	info := ParseJavaSignature(signature, "")
	types := make([]string, 0, len(info.Parameters))
	for _, p := range info.Parameters {
		types = append(types, p.Type)
	}
	return types
}

// ExtractReturnType returns the declared return type, or "" for constructors and
// unparseable input.
func ExtractReturnType(signature string) string {
	return ParseJavaSignature(signature, "").ReturnType
}

// ExtractAllTypes returns the distinct non-primitive simple type names referenced by the
// signature: the return type and its generic arguments first, then each parameter type
// followed by its generic arguments, depth first.
func ExtractAllTypes(signature string) []string {
	info := ParseJavaSignature(signature, "")
	typeVars := make(map[string]bool, len(info.TypeParameters))
	for _, tv := range info.TypeParameters {
		typeVars[tv] = true
	}

	var raw []string
	if info.ReturnType != "" {
		raw = append(raw, info.ReturnType)
	}
	for _, p := range info.Parameters {
		raw = append(raw, p.Type)
	}

	seen := make(map[string]bool)
	var out []string
	for _, r := range raw {
		for _, t := range UnwrapGenerics(r) {
			if IsExcludedType(t) || typeVars[t] || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// UnwrapGenerics returns the cleaned simple names of a type and all of its generic
// arguments, outer type first then arguments depth first.
// Example: "List<Map<String, Foo>>" -> [List Map String Foo]
func UnwrapGenerics(typeStr string) []string {
	typeStr = strings.TrimSpace(typeStr)
	if typeStr == "" {
		return nil
	}
	var out []string
	lt := strings.Index(typeStr, "<")
	if lt < 0 {
		if name := CleanTypeName(typeStr); name != "" {
			out = append(out, name)
		}
		return out
	}
	if name := CleanTypeName(typeStr[:lt]); name != "" {
		out = append(out, name)
	}
	gt := strings.LastIndex(typeStr, ">")
	if gt < lt {
		gt = len(typeStr)
	}
	for _, arg := range splitParameters(typeStr[lt+1 : gt]) {
		out = append(out, UnwrapGenerics(arg)...)
	}
	return out
}

// CleanTypeName reduces a type reference to its simple name: array markers, varargs,
// wildcard bounds, annotations and package qualifiers are removed.
func CleanTypeName(typeStr string) string {
	t := strings.TrimSpace(annotationRegex.ReplaceAllString(typeStr, ""))
	if i := strings.Index(t, "<"); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimPrefix(t, "final ")
	switch {
	case strings.HasPrefix(t, "? extends "):
		t = strings.TrimPrefix(t, "? extends ")
	case strings.HasPrefix(t, "? super "):
		t = strings.TrimPrefix(t, "? super ")
	case t == "?":
		return ""
	}
	t = strings.ReplaceAll(t, "[]", "")
	t = strings.ReplaceAll(t, "...", "")
	t = strings.TrimSpace(t)
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	if t == "" || !isIdentifier(t) {
		return ""
	}
	return t
}

// NormalizeSignatureForEmbedding converts a method signature into a normalized
// text representation optimized for embedding-based semantic search.
//
// Example:
//
//	Input: class=UserService, method=findByEmail, params=[(email, String)], returns=User
//	Output: "User Service find By Email String email returns User"
func NormalizeSignatureForEmbedding(info SignatureInfo) string {
	var parts []string
	if info.ClassName != "" {
		parts = append(parts, splitCamelCase(info.ClassName))
	}
	if info.MethodName != "" {
		parts = append(parts, splitCamelCase(info.MethodName))
	}
	for _, param := range info.Parameters {
		parts = append(parts, normalizeTypeName(param.Type))
		if param.Name != "" {
			parts = append(parts, splitCamelCase(param.Name))
		}
	}
	if info.ReturnType != "" && info.ReturnType != "void" {
		parts = append(parts, "returns", normalizeTypeName(info.ReturnType))
	} else {
		parts = append(parts, "returns void")
	}
	return strings.Join(parts, " ")
}

// splitCamelCase splits a camelCase or PascalCase string into separate words.
// Example: "findByEmail" -> "find By Email"
func splitCamelCase(s string) string {
	if s == "" {
		return ""
	}
	var result strings.Builder
	var prevLower bool
	for i, r := range s {
		isUpper := unicode.IsUpper(r)
		if i > 0 && isUpper && prevLower {
			result.WriteRune(' ')
		}
		result.WriteRune(r)
		prevLower = unicode.IsLower(r)
	}
	return result.String()
}

var (
	genericBracketRegex = regexp.MustCompile(`[<>]`)
	multiSpaceRegex     = regexp.MustCompile(`\s+`)
)

// normalizeTypeName normalizes a type name for embedding.
func normalizeTypeName(typeName string) string {
	if typeName == "" {
		return ""
	}
	typeName = strings.ReplaceAll(typeName, "[]", "")
	typeName = genericBracketRegex.ReplaceAllString(typeName, " ")
	typeName = strings.ReplaceAll(typeName, ",", " ")

	var words []string
	for _, w := range strings.Fields(typeName) {
		if idx := strings.LastIndex(w, "."); idx >= 0 {
			w = w[idx+1:]
		}
		words = append(words, splitCamelCase(w))
	}
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(strings.Join(words, " "), " "))
}

// splitParameters splits a parameter string by commas, respecting nested brackets
func splitParameters(paramsStr string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range paramsStr {
		switch ch {
		case '<', '[', '(':
			depth++
			current.WriteRune(ch)
		case '>', ']', ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				result = append(result, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		result = append(result, s)
	}
	return result
}

// splitTopLevelFields splits on whitespace that is not inside angle brackets.
func splitTopLevelFields(s string) []string {
	var fields []string
	var current strings.Builder
	depth := 0
	flush := func() {
		if current.Len() > 0 {
			fields = append(fields, current.String())
			current.Reset()
		}
	}
	for _, ch := range s {
		switch {
		case ch == '<':
			depth++
			current.WriteRune(ch)
		case ch == '>':
			depth--
			current.WriteRune(ch)
		case unicode.IsSpace(ch) && depth <= 0:
			flush()
		case unicode.IsSpace(ch):
			current.WriteRune(' ')
		default:
			current.WriteRune(ch)
		}
	}
	flush()

	// "List <Foo>" style spacing: glue a generic argument list to the preceding name
	var merged []string
	for _, f := range fields {
		if strings.HasPrefix(f, "<") && len(merged) > 0 && !isJavaModifier(merged[len(merged)-1]) && merged[len(merged)-1] != "" {
			last := merged[len(merged)-1]
			if isIdentifier(strings.ReplaceAll(last, ".", "")) && !strings.Contains(last, "<") {
				merged[len(merged)-1] = last + f
				continue
			}
		}
		merged = append(merged, f)
	}
	return merged
}

func matchingParen(s string, open int) int {
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
		}
	}
	return -1
}

func dropModifiers(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p == "final" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func typeParameterNames(tok string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(tok, "<"), ">")
	var names []string
	for _, part := range splitParameters(inner) {
		fields := strings.Fields(part)
		if len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	return names
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// isJavaModifier checks if a string is a Java modifier keyword
func isJavaModifier(s string) bool {
	modifiers := map[string]bool{
		"public": true, "private": true, "protected": true,
		"static": true, "final": true, "abstract": true,
		"synchronized": true, "native": true, "strictfp": true,
		"transient": true, "volatile": true, "default": true,
	}
	return modifiers[s]
}

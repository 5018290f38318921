package prompt

import (
	"regexp"
	"strings"
)

type errorCategory struct {
	hint string
	// any matches when one of the lowercase substrings occurs
	any []string
	// all matches when every lowercase substring occurs
	all []string
	// pattern matches against the lowercase diagnostic
	pattern *regexp.Regexp
}

func (c errorCategory) matches(lower string) bool {
	for _, s := range c.any {
		if strings.Contains(lower, s) {
			return true
		}
	}
	if c.pattern != nil && c.pattern.MatchString(lower) {
		return true
	}
	if len(c.all) == 0 {
		return false
	}
	for _, s := range c.all {
		if !strings.Contains(lower, s) {
			return false
		}
	}
	return true
}

var compileCategories = []errorCategory{
	{hint: "SYMBOL NOT FOUND: Missing imports or incorrect class/method names", any: []string{"cannot find symbol"}},
	{hint: "PACKAGE ERROR: Incorrect package imports or missing dependencies", any: []string{"package does not exist"}, all: []string{"package", "does not exist"}},
	{hint: "TYPE MISMATCH: Type casting or generic type issues", any: []string{"incompatible types"}},
	{hint: "METHOD ERROR: Incorrect method names or signatures", any: []string{"method not found", "cannot resolve method", "cannot be applied to", "no suitable method"}},
	{hint: "CONSTRUCTOR ERROR: Use the exact constructor parameters of the class", any: []string{"no suitable constructor", "has private access"}, all: []string{"constructor", "cannot be applied"}},
	{hint: "VOID STUBBING: Stub void methods with doNothing().when(mock), not when(...).thenReturn(...)", any: []string{"'void' type not allowed here", "void type not allowed here"}},
	{hint: "UNREPORTED EXCEPTION: Declare throws Exception on the test method or catch it", any: []string{"unreported exception"}},
	{hint: "DUPLICATE ERROR: Duplicate imports, methods, or variables", any: []string{"duplicate", "is already defined"}},
	{hint: "SYNTAX ERROR: Missing semicolons, brackets, or incorrect Java syntax", any: []string{"syntax error", "illegal start of", "reached end of file while parsing", "not a statement"},
		pattern: regexp.MustCompile(`'[^'\n]+' expected|<identifier> expected|class, interface, enum, or record expected`)},
}

var runtimeCategories = []errorCategory{
	{hint: "NULL POINTER: Objects not initialized or mock setup missing", any: []string{"nullpointerexception"}},
	{hint: "ASSERTION FAILED: Expected vs actual values don't match", any: []string{"assertionfailederror", "comparisonfailure"}, all: []string{"expected", "but was"}},
	{hint: "ILLEGAL ARGUMENT: Invalid parameters passed to methods", any: []string{"illegalargumentexception"}},
	{hint: "CLASS CAST: Incorrect type casting in test code", any: []string{"classcastexception"}},
	{hint: "MOCK ERROR: Mockito configuration or usage issues", any: []string{"mockito", "unnecessarystubbing", "wantedbutnotinvoked", "invaliduseofmatchers", "cannot mock"}},
	{hint: "TIMEOUT: Test execution taking too long", any: []string{"timeout", "timed out"}},
	{hint: "RESOURCE ERROR: Missing test resources or files", any: []string{"filenotfound", "nosuchfile", "resource not found"}},
	{hint: "CLASS LOADING: A class is missing from the test classpath", any: []string{"classnotfoundexception", "noclassdeffounderror"}},
}

// ClassifyCompileError returns hint lines for the compile error categories the
// diagnostic matches, in a fixed order.
func ClassifyCompileError(diagnostic string) []string {
	return classify(diagnostic, compileCategories)
}

// ClassifyRuntimeError returns hint lines for the runtime error categories the
// diagnostic matches, in a fixed order.
func ClassifyRuntimeError(diagnostic string) []string {
	return classify(diagnostic, runtimeCategories)
}

func classify(diagnostic string, categories []errorCategory) []string {
	lower := strings.ToLower(diagnostic)
	var hints []string
	for _, c := range categories {
		if c.matches(lower) {
			hints = append(hints, c.hint)
		}
	}
	return hints
}

func analysisBlock(diagnostic string, hints []string, general string) string {
	if strings.TrimSpace(diagnostic) == "" {
		return "No specific error analysis available."
	}
	if len(hints) == 0 {
		return general
	}
	return strings.Join(hints, "\n")
}

package prompt

import (
	"strings"
	"testing"

	"github.com/armchr/testgen/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var comparerMethod = MethodInfo{
	ClassName: "PdfComparer",
	Package:   "com.acme",
	Name:      "compare",
	Signature: "public List<Point> compare(Point a, BaseColor color)",
	Source:    "public List<Point> compare(Point a, BaseColor color) {\n    pdfHighlighter.highlight(a);\n    return List.of(a);\n}",
}

func item(itemType, content string, meta map[string]string) model.ContextItem {
	if meta == nil {
		meta = map[string]string{}
	}
	meta[model.MetaType] = itemType
	return model.NewContextItem(content, meta, 0.2)
}

func TestDefaultManager(t *testing.T) {
	pm := DefaultManager()
	for _, kind := range requiredKinds {
		tmpl, err := pm.GetTemplate(kind)
		require.NoError(t, err)
		assert.NotEmpty(t, tmpl.SystemPrompt)
		assert.Equal(t, 4096, tmpl.MaxTokens)
	}
	assert.Contains(t, pm.StyleGuide(model.StyleBDD), "Given/When/Then")
	assert.Equal(t, pm.StyleGuide(model.StyleComprehensive), pm.StyleGuide("unknown"))
	assert.Contains(t, pm.OutputContract(), `Start directly with the "package" declaration`)
}

func TestNewManagerFromBytes_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing templates", "styles:\n  comprehensive: x\nprompts:\n  generation: {user_prompt: hi}\n"},
		{"unknown style", "styles:\n  fancy: x\n"},
		{"no comprehensive style", "styles:\n  minimal: x\n"},
		{"bad template", "styles:\n  comprehensive: x\nprompts:\n  generation: {user_prompt: '{{.Broken'}\n"},
		{"bad yaml", "styles: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManagerFromBytes([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestBuilder_Generation(t *testing.T) {
	b := NewBuilder(nil)
	contexts := []model.ContextItem{
		item(model.ItemClass, "public record Point(int x, int y) {}", map[string]string{
			model.MetaClassName: "Point",
			model.MetaPackage:   "com.acme.geo",
		}),
	}

	p, err := b.Generation(comparerMethod, contexts, model.StyleBDD)
	require.NoError(t, err)
	assert.Equal(t, KindGeneration, p.Kind)
	assert.NotEmpty(t, p.System)
	assert.Contains(t, p.User, "Target Class: PdfComparer")
	assert.Contains(t, p.User, "Package: com.acme")
	assert.Contains(t, p.User, "Target Method: compare")
	assert.Contains(t, p.User, "pdfHighlighter.highlight(a);")
	assert.Contains(t, p.User, "Test Style: BDD")
	assert.Contains(t, p.User, "Given/When/Then")
	assert.Contains(t, p.User, "Do NOT use <think> tags")
	assert.Contains(t, p.User, "=== CONTEXT INFORMATION ===")
	assert.Contains(t, p.User, "- Point: import com.acme.geo.Point;")
	assert.Nil(t, p.Hints)

	bare, err := b.Generation(MethodInfo{ClassName: "A", Package: "p", Name: "m"}, nil, "")
	require.NoError(t, err)
	assert.NotContains(t, bare.User, "=== CONTEXT INFORMATION ===")
	assert.Contains(t, bare.User, "Test Style: COMPREHENSIVE")
	assert.Contains(t, bare.User, "Implementation not available")
}

func TestBuilder_CompileFix(t *testing.T) {
	b := NewBuilder(nil)
	diagnostic := "PdfComparerTest.java:[10,5] cannot find symbol\n  symbol: class BaseColor\n" +
		"PdfComparerTest.java:[12,20] incompatible types: String cannot be converted to int"

	p, err := b.CompileFix(comparerMethod, nil, "package com.acme;\nclass PdfComparerTest {}", diagnostic)
	require.NoError(t, err)
	assert.Equal(t, KindCompileFix, p.Kind)
	assert.Equal(t, []string{
		"SYMBOL NOT FOUND: Missing imports or incorrect class/method names",
		"TYPE MISMATCH: Type casting or generic type issues",
	}, p.Hints)
	assert.Contains(t, p.User, "COMPILATION ERROR FIXING TASK")
	assert.Contains(t, p.User, "class PdfComparerTest {}")
	assert.Contains(t, p.User, "incompatible types: String cannot be converted to int")
	assert.Contains(t, p.User, "SYMBOL NOT FOUND")
	assert.Contains(t, p.User, "End with the closing brace of the test class")
}

func TestBuilder_RuntimeFix(t *testing.T) {
	b := NewBuilder(nil)

	p, err := b.RuntimeFix(comparerMethod, nil, "code", "org.opentest4j.AssertionFailedError: expected: <1> but was: <2>")
	require.NoError(t, err)
	assert.Equal(t, []string{"ASSERTION FAILED: Expected vs actual values don't match"}, p.Hints)
	assert.Contains(t, p.User, "RUNTIME ERROR FIXING TASK")

	p, err = b.RuntimeFix(comparerMethod, nil, "code", "")
	require.NoError(t, err)
	assert.Empty(t, p.Hints)
	assert.Contains(t, p.User, "No specific error analysis available.")

	p, err = b.RuntimeFix(comparerMethod, nil, "code", "Process exited with code 137")
	require.NoError(t, err)
	assert.Contains(t, p.User, "GENERAL RUNTIME ERROR")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		diagnostic string
		runtime    bool
		want       string
	}{
		{"missing semicolon", "Foo.java:3: error: ';' expected", false, "SYNTAX ERROR"},
		{"void stub", "error: 'void' type not allowed here", false, "VOID STUBBING"},
		{"missing package", "error: package org.assertj.core.api does not exist", false, "PACKAGE ERROR"},
		{"constructor", "error: constructor Point in record Point cannot be applied to given types;", false, "CONSTRUCTOR ERROR"},
		{"checked exception", "error: unreported exception IOException; must be caught or declared to be thrown", false, "UNREPORTED EXCEPTION"},
		{"npe", "java.lang.NullPointerException: Cannot invoke \"Foo.bar()\"", true, "NULL POINTER"},
		{"mockito", "org.mockito.exceptions.misusing.UnnecessaryStubbingException", true, "MOCK ERROR"},
		{"timeout", "java.util.concurrent.TimeoutException", true, "TIMEOUT"},
		{"resource", "java.io.FileNotFoundException: sample.pdf", true, "RESOURCE ERROR"},
		{"class loading", "java.lang.NoClassDefFoundError: com/itextpdf/text/Document", true, "CLASS LOADING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hints []string
			if tt.runtime {
				hints = ClassifyRuntimeError(tt.diagnostic)
			} else {
				hints = ClassifyCompileError(tt.diagnostic)
			}
			require.NotEmpty(t, hints)
			found := false
			for _, h := range hints {
				if len(h) >= len(tt.want) && h[:len(tt.want)] == tt.want {
					found = true
				}
			}
			assert.True(t, found, "hints %v do not include %s", hints, tt.want)
		})
	}
	assert.Empty(t, ClassifyCompileError("BUILD SUCCESS"))
}

func TestClassify_SyntaxNeedsExpectedToken(t *testing.T) {
	tests := []struct {
		diagnostic string
		syntax     bool
	}{
		{"PointTest.java:7: error: ';' expected", true},
		{"PointTest.java:9: error: <identifier> expected", true},
		{"PointTest.java:30: error: class, interface, enum, or record expected", true},
		{"PointTest.java:4: error: not a statement", true},
		{"error: incompatible types: int cannot be converted to String\n  required: String, expected type from context", false},
		{"error: method distance in class Point cannot be applied to given types;\n  required: Point\n  found: no arguments\n  reason: actual and formal argument lists differ in length, expected 1", false},
	}
	for _, tt := range tests {
		hints := ClassifyCompileError(tt.diagnostic)
		syntax := false
		for _, h := range hints {
			if strings.HasPrefix(h, "SYNTAX ERROR") {
				syntax = true
			}
		}
		assert.Equal(t, tt.syntax, syntax, "diagnostic %q gave hints %v", tt.diagnostic, hints)
	}
}

func TestFormatContext_ContextAware(t *testing.T) {
	items := []model.ContextItem{
		item(model.ItemCoreContext, "Method: public int sum(int a, int b)\n\nImplementation:\n{ return a + b; }", map[string]string{
			model.MetaClassName:  "com.acme.util.MathUtils",
			model.MetaMethodName: "sum",
		}),
		item(model.ItemClassInfo, "class MathUtils in package com.acme.util", nil),
		item(model.ItemImports, "import com.acme.util.MathUtils;", nil),
		item(model.ItemErrorEnhanced, "Method signature: public static int sum(int a, int b)", nil),
	}
	require.True(t, IsContextAware(items))

	out := FormatContext(items)
	assert.Contains(t, out, "1. MathUtils.sum:\n   Method: public int sum(int a, int b)")
	assert.Contains(t, out, "2. Class Information:\n   class MathUtils in package com.acme.util")
	assert.Contains(t, out, "3. Required Imports:\n   import com.acme.util.MathUtils;")
	assert.Contains(t, out, "4. Error Analysis:")
	assert.NotContains(t, out, "CRITICAL IMPORT INFORMATION")
}

func TestFormatContext_RAG(t *testing.T) {
	items := []model.ContextItem{
		item(model.ItemClass, "Class: Point\nPackage: com.acme.geo\n\nFull Definition:\npublic record Point(int x, int y) {}", map[string]string{
			model.MetaClassName: "Point",
			model.MetaPackage:   "com.acme.geo",
		}),
		item(model.ItemMethod, "Method: public List<Point> compare(Point a)\n\nImplementation:\n{ pdfHighlighter.highlight(a); }", map[string]string{
			model.MetaClassName:  "PdfComparer",
			model.MetaPackage:    "com.acme",
			model.MetaMethodName: "compare",
		}),
		item(model.ItemClass, "public class PdfComparer {\n    private final PDFHighlighter pdfHighlighter;\n}", map[string]string{
			model.MetaClassName: "PdfComparer",
			model.MetaPackage:   "com.acme",
		}),
		item(model.ItemExternalLibrary, "EXTERNAL LIBRARY: BaseColor\nImport: import com.itextpdf.text.BaseColor;", map[string]string{
			model.MetaClassName: "BaseColor",
			model.MetaPackage:   "com.itextpdf.text",
		}),
	}
	require.False(t, IsContextAware(items))

	out := FormatContext(items)
	assert.Contains(t, out, "1. Point (Class):\n   Package: com.acme.geo")
	assert.Contains(t, out, "2. PdfComparer.compare:\n   Method: Method: public List<Point> compare(Point a)")
	assert.Contains(t, out, "=== CRITICAL IMPORT INFORMATION ===")
	assert.Contains(t, out, "- BaseColor: import com.itextpdf.text.BaseColor;")
	assert.Contains(t, out, "- PdfComparer: import com.acme.PdfComparer;")
	assert.Contains(t, out, "- Point: import com.acme.geo.Point;")
	assert.Contains(t, out, "Point is a record class with 2 parameters: int x, int y")
	assert.Contains(t, out, "PdfComparer has final fields: PDFHighlighter pdfHighlighter")
	assert.Contains(t, out, "PdfComparer calls methods on objects: pdfHighlighter")
	assert.Contains(t, out, "=== EXTERNAL LIBRARY INFORMATION ===")

	assert.Empty(t, FormatContext(nil))
}

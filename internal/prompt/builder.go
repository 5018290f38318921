package prompt

import (
	"fmt"
	"strings"

	"github.com/armchr/testgen/internal/model"
)

// MethodInfo identifies the method under test.
type MethodInfo struct {
	ClassName string
	Package   string
	Name      string
	Signature string
	// Source is the method text, signature through closing brace.
	Source string
}

// Prompt is a rendered prompt plus the sampling settings of its template.
type Prompt struct {
	Kind        Kind
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// Hints holds the classifier output for fix prompts.
	Hints []string
}

type generationData struct {
	ClassName       string
	Package         string
	MethodName      string
	MethodSignature string
	MethodSource    string
	Style           string
	StyleGuide      string
	Context         string
	OutputContract  string
}

type fixData struct {
	ClassName      string
	MethodName     string
	MethodSource   string
	Context        string
	Code           string
	Diagnostic     string
	Analysis       string
	OutputContract string
}

// Builder renders the three prompt kinds.
type Builder struct {
	pm *Manager
}

// NewBuilder creates a builder; a nil manager uses the built-in templates.
func NewBuilder(pm *Manager) *Builder {
	if pm == nil {
		pm = DefaultManager()
	}
	return &Builder{pm: pm}
}

// Generation renders the initial test generation prompt.
func (b *Builder) Generation(m MethodInfo, contexts []model.ContextItem, style model.TestStyle) (*Prompt, error) {
	if style == "" {
		style = model.StyleComprehensive
	}
	data := generationData{
		ClassName:       m.ClassName,
		Package:         m.Package,
		MethodName:      m.Name,
		MethodSignature: m.Signature,
		MethodSource:    methodSource(m),
		Style:           strings.ToUpper(string(style)),
		StyleGuide:      b.pm.StyleGuide(style),
		Context:         FormatContext(contexts),
		OutputContract:  b.pm.OutputContract(),
	}
	return b.render(KindGeneration, data, nil)
}

// CompileFix renders a prompt asking the model to make code compile.
func (b *Builder) CompileFix(m MethodInfo, contexts []model.ContextItem, code, diagnostic string) (*Prompt, error) {
	hints := ClassifyCompileError(diagnostic)
	data := b.fixData(m, contexts, code, diagnostic,
		analysisBlock(diagnostic, hints, "GENERAL COMPILATION ERROR: Review the error message for specific issues"))
	return b.render(KindCompileFix, data, hints)
}

// RuntimeFix renders a prompt asking the model to make failing tests pass.
func (b *Builder) RuntimeFix(m MethodInfo, contexts []model.ContextItem, code, diagnostic string) (*Prompt, error) {
	hints := ClassifyRuntimeError(diagnostic)
	data := b.fixData(m, contexts, code, diagnostic,
		analysisBlock(diagnostic, hints, "GENERAL RUNTIME ERROR: Review the stack trace for specific issues"))
	return b.render(KindRuntimeFix, data, hints)
}

func (b *Builder) fixData(m MethodInfo, contexts []model.ContextItem, code, diagnostic, analysis string) fixData {
	return fixData{
		ClassName:      m.ClassName,
		MethodName:     m.Name,
		MethodSource:   methodSource(m),
		Context:        FormatContext(contexts),
		Code:           code,
		Diagnostic:     strings.TrimSpace(diagnostic),
		Analysis:       analysis,
		OutputContract: b.pm.OutputContract(),
	}
}

func (b *Builder) render(kind Kind, data any, hints []string) (*Prompt, error) {
	system, user, err := b.pm.Render(kind, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s prompt: %w", kind, err)
	}
	tmpl, _ := b.pm.GetTemplate(kind)
	return &Prompt{
		Kind:        kind,
		System:      system,
		User:        user,
		MaxTokens:   tmpl.MaxTokens,
		Temperature: tmpl.Temperature,
		Hints:       hints,
	}, nil
}

func methodSource(m MethodInfo) string {
	if strings.TrimSpace(m.Source) != "" {
		return m.Source
	}
	if m.Signature != "" {
		return m.Signature
	}
	return "Implementation not available"
}

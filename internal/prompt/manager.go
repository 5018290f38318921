// Package prompt renders the generation and repair prompts sent to the model.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/armchr/testgen/internal/model"
	"gopkg.in/yaml.v2"
)

//go:embed prompts.yaml
var defaultPromptConfig []byte

// Kind names one of the prompt templates.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindCompileFix Kind = "compile_fix"
	KindRuntimeFix Kind = "runtime_fix"
)

var requiredKinds = []Kind{KindGeneration, KindCompileFix, KindRuntimeFix}

// Defaults holds settings shared by all templates.
type Defaults struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Template holds a parsed prompt template.
type Template struct {
	Kind           Kind
	SystemPrompt   string
	UserPromptTmpl *template.Template
	MaxTokens      int
	Temperature    float64
}

type promptConfigFile struct {
	Defaults       Defaults                      `yaml:"defaults"`
	OutputContract string                        `yaml:"output_contract"`
	Styles         map[string]string             `yaml:"styles"`
	Prompts        map[string]promptTemplateSpec `yaml:"prompts"`
}

type promptTemplateSpec struct {
	SystemPrompt string  `yaml:"system_prompt"`
	UserPrompt   string  `yaml:"user_prompt"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// Manager holds the prompt templates, the style fragments and the output contract.
type Manager struct {
	templates map[Kind]*Template
	styles    map[model.TestStyle]string
	contract  string
	defaults  Defaults
}

// NewManager loads templates from a YAML file, or the built-in set when path is empty.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		return NewManagerFromBytes(defaultPromptConfig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt config: %w", err)
	}
	return NewManagerFromBytes(data)
}

// NewManagerFromBytes parses templates from YAML bytes. Every template kind and a
// comprehensive style must be present.
func NewManagerFromBytes(data []byte) (*Manager, error) {
	var cfg promptConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse prompt config: %w", err)
	}
	if cfg.Defaults.MaxTokens == 0 {
		cfg.Defaults.MaxTokens = 4096
	}
	if cfg.Defaults.Temperature == 0 {
		cfg.Defaults.Temperature = 0.2
	}

	pm := &Manager{
		templates: make(map[Kind]*Template),
		styles:    make(map[model.TestStyle]string),
		contract:  strings.TrimSpace(cfg.OutputContract),
		defaults:  cfg.Defaults,
	}
	for name, fragment := range cfg.Styles {
		style, err := model.ParseTestStyle(name)
		if err != nil {
			return nil, err
		}
		pm.styles[style] = strings.TrimSpace(fragment)
	}
	if _, ok := pm.styles[model.StyleComprehensive]; !ok {
		return nil, fmt.Errorf("prompt config has no %s style", model.StyleComprehensive)
	}

	for name, spec := range cfg.Prompts {
		kind := Kind(name)
		tmpl, err := template.New(name).Option("missingkey=error").Parse(spec.UserPrompt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template for %s: %w", name, err)
		}
		maxTokens := spec.MaxTokens
		if maxTokens == 0 {
			maxTokens = cfg.Defaults.MaxTokens
		}
		temperature := spec.Temperature
		if temperature == 0 {
			temperature = cfg.Defaults.Temperature
		}
		pm.templates[kind] = &Template{
			Kind:           kind,
			SystemPrompt:   strings.TrimSpace(spec.SystemPrompt),
			UserPromptTmpl: tmpl,
			MaxTokens:      maxTokens,
			Temperature:    temperature,
		}
	}
	for _, kind := range requiredKinds {
		if _, ok := pm.templates[kind]; !ok {
			return nil, fmt.Errorf("prompt config has no %s template", kind)
		}
	}
	return pm, nil
}

// DefaultManager returns the built-in templates.
func DefaultManager() *Manager {
	pm, err := NewManagerFromBytes(defaultPromptConfig)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in prompts: %v", err))
	}
	return pm
}

// GetTemplate returns the template for a kind.
func (pm *Manager) GetTemplate(kind Kind) (*Template, error) {
	tmpl, ok := pm.templates[kind]
	if !ok {
		return nil, fmt.Errorf("no template for kind: %s", kind)
	}
	return tmpl, nil
}

// Render executes the template for kind against data.
func (pm *Manager) Render(kind Kind, data any) (systemPrompt, userPrompt string, err error) {
	tmpl, err := pm.GetTemplate(kind)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := tmpl.UserPromptTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render template: %w", err)
	}
	return tmpl.SystemPrompt, buf.String(), nil
}

// StyleGuide returns the fragment for style, falling back to comprehensive.
func (pm *Manager) StyleGuide(style model.TestStyle) string {
	if s, ok := pm.styles[style]; ok {
		return s
	}
	return pm.styles[model.StyleComprehensive]
}

// OutputContract returns the code-only instruction block.
func (pm *Manager) OutputContract() string {
	return pm.contract
}

func (pm *Manager) GetDefaults() Defaults {
	return pm.defaults
}

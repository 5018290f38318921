package contextaware

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/armchr/testgen/internal/model"
	"gopkg.in/yaml.v2"
)

//go:embed known_types.yaml
var defaultKnownTypes []byte

type knownType struct {
	FQN          string   `yaml:"fqn"`
	Kind         string   `yaml:"kind"`
	Constructors []string `yaml:"constructors"`
	Factories    []string `yaml:"factories"`
	Mockable     bool     `yaml:"mockable"`
	Guide        string   `yaml:"guide"`
}

type knownTypesFile struct {
	Types   map[string]knownType `yaml:"types"`
	Imports map[string]string    `yaml:"imports"`
}

// KnownTypes holds hand-written dependency descriptions and import hints for types the
// project index cannot describe. It is read-only after loading.
type KnownTypes struct {
	types   map[string]knownType
	imports map[string]string
}

// LoadKnownTypes reads the table from path, or the built-in table when path is empty.
func LoadKnownTypes(path string) (*KnownTypes, error) {
	if path == "" {
		return ParseKnownTypes(defaultKnownTypes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read known types: %w", err)
	}
	return ParseKnownTypes(data)
}

// DefaultKnownTypes returns the built-in table.
func DefaultKnownTypes() *KnownTypes {
	kt, err := ParseKnownTypes(defaultKnownTypes)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in known types: %v", err))
	}
	return kt
}

// ParseKnownTypes decodes a YAML table.
func ParseKnownTypes(data []byte) (*KnownTypes, error) {
	var f knownTypesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse known types: %w", err)
	}
	for name, t := range f.Types {
		if t.FQN == "" {
			return nil, fmt.Errorf("known type %s has no fqn", name)
		}
	}
	kt := &KnownTypes{types: f.Types, imports: f.Imports}
	if kt.types == nil {
		kt.types = map[string]knownType{}
	}
	if kt.imports == nil {
		kt.imports = map[string]string{}
	}
	return kt, nil
}

// Dependency returns the fixed description of a type, if the table has one.
func (k *KnownTypes) Dependency(simpleName string) (DependencyContext, bool) {
	t, ok := k.types[simpleName]
	if !ok {
		return DependencyContext{}, false
	}
	kind := model.Kind(t.Kind)
	if kind == "" {
		kind = model.KindClass
	}
	return DependencyContext{
		FQN:            t.FQN,
		Kind:           kind,
		Constructors:   append([]string(nil), t.Constructors...),
		FactoryMethods: append([]string(nil), t.Factories...),
		Mockable:       t.Mockable,
		Guide:          t.Guide,
	}, true
}

// Has reports whether the type has a fixed description.
func (k *KnownTypes) Has(simpleName string) bool {
	_, ok := k.types[simpleName]
	return ok
}

// QualifiedName returns the fully-qualified name for a simple name from either part of
// the table.
func (k *KnownTypes) QualifiedName(simpleName string) (string, bool) {
	if t, ok := k.types[simpleName]; ok {
		return t.FQN, true
	}
	fqn, ok := k.imports[simpleName]
	return fqn, ok
}

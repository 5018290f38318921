package retrieval

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

//go:embed libraries.yaml
var defaultLibraries []byte

// Library describes a class that lives outside the project.
type Library struct {
	Name            string `yaml:"-"`
	FQN             string `yaml:"fqn"`
	ConstructorHint string `yaml:"constructor"`
	Framework       bool   `yaml:"framework"`
}

// Package returns the package part of the qualified name.
func (l Library) Package() string {
	if i := strings.LastIndex(l.FQN, "."); i >= 0 {
		return l.FQN[:i]
	}
	return ""
}

// ImportStatement returns "import <fqn>;".
func (l Library) ImportStatement() string {
	return "import " + l.FQN + ";"
}

type libraryFile struct {
	Libraries map[string]Library `yaml:"libraries"`
}

// LibraryTable maps simple class names to external library classes. It is read-only
// after loading.
type LibraryTable struct {
	entries map[string]Library
}

// LoadLibraries reads the table from path, or the built-in table when path is empty.
func LoadLibraries(path string) (*LibraryTable, error) {
	if path == "" {
		return ParseLibraries(defaultLibraries)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library table: %w", err)
	}
	return ParseLibraries(data)
}

// DefaultLibraries returns the built-in table.
func DefaultLibraries() *LibraryTable {
	t, err := ParseLibraries(defaultLibraries)
	if err != nil {
		panic(fmt.Sprintf("embedded library table is invalid: %v", err))
	}
	return t
}

func ParseLibraries(data []byte) (*LibraryTable, error) {
	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse library table: %w", err)
	}
	t := &LibraryTable{entries: make(map[string]Library, len(file.Libraries))}
	for name, lib := range file.Libraries {
		if lib.FQN == "" {
			return nil, fmt.Errorf("library %s has no fqn", name)
		}
		lib.Name = name
		t.entries[name] = lib
	}
	return t, nil
}

func (t *LibraryTable) Lookup(name string) (Library, bool) {
	lib, ok := t.entries[name]
	return lib, ok
}

func (t *LibraryTable) IsExternal(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// ImportStatement returns the import line for name, or "" when unknown.
func (t *LibraryTable) ImportStatement(name string) string {
	if lib, ok := t.entries[name]; ok {
		return lib.ImportStatement()
	}
	return ""
}

var capitalizedWordRegex = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*\b`)

// Mentions returns the known non-framework library classes named in text, sorted.
func (t *LibraryTable) Mentions(text string) []Library {
	seen := map[string]bool{}
	var out []Library
	for _, word := range capitalizedWordRegex.FindAllString(text, -1) {
		if seen[word] {
			continue
		}
		seen[word] = true
		if lib, ok := t.entries[word]; ok && !lib.Framework {
			out = append(out, lib)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

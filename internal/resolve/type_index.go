// Package resolve maps simple Java type names to the project declarations they denote.
package resolve

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/parse"
	"github.com/armchr/testgen/internal/util"
	"go.uber.org/zap"
)

// Resolution is the outcome of a lookup. Class is nil when the name is unknown.
// Ambiguous is set whenever more than one declaration shares the simple name; Warning
// is non-empty when the pick could not be made from the package context.
type Resolution struct {
	Class      *model.ClassFact
	Ambiguous  bool
	Candidates int
	Warning    string
}

func (r Resolution) Found() bool {
	return r.Class != nil
}

// Stats summarizes an index.
type Stats struct {
	TotalTypes     int `json:"total_types"`
	UniqueNames    int `json:"unique_names"`
	AmbiguousNames int `json:"ambiguous_names"`
	Packages       int `json:"packages"`
}

// TypeIndex is read-only once built and safe for concurrent lookups.
type TypeIndex struct {
	mu        sync.RWMutex
	byName    map[string][]*model.ClassFact
	byFQN     map[string]*model.ClassFact
	byPackage map[string][]string
	logger    *zap.Logger
}

func NewTypeIndex(logger *zap.Logger) *TypeIndex {
	return &TypeIndex{
		byName:    make(map[string][]*model.ClassFact),
		byFQN:     make(map[string]*model.ClassFact),
		byPackage: make(map[string][]string),
		logger:    logger,
	}
}

// Build scans every non-test Java file under root once and registers the primary
// type of each file. Files are visited in lexical order, which fixes the
// "first discovered" order used for ambiguity fallback.
func Build(root string, parser *parse.Parser, workers int, logger *zap.Logger) (*TypeIndex, error) {
	files, err := util.WalkSourceFiles(root, ".java", util.IsJavaTestPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to scan project %s: %w", root, err)
	}

	parsed := util.DoWorkList(files, workers, func(path string) *model.ClassFact {
		facts, err := parser.ParseFile(path)
		if err != nil {
			logger.Warn("Failed to parse file for type index", zap.String("file", path), zap.Error(err))
			return nil
		}
		return parse.PrimaryType(facts)
	})

	ti := NewTypeIndex(logger)
	for _, fact := range parsed {
		if fact != nil {
			ti.Add(fact)
		}
	}

	stats := ti.Statistics()
	logger.Info("Built type index",
		zap.String("root", root),
		zap.Int("files", len(files)),
		zap.Int("types", stats.TotalTypes),
		zap.Int("ambiguous", stats.AmbiguousNames))
	return ti, nil
}

// NewTypeIndexFromFacts builds an index from already-parsed declarations the way Build
// does from source: one primary type per file, files in lexical order. Declarations
// without a file path are registered as they come, ahead of the rest.
func NewTypeIndexFromFacts(facts []*model.ClassFact, logger *zap.Logger) *TypeIndex {
	ti := NewTypeIndex(logger)
	byFile := make(map[string][]*model.ClassFact)
	var files []string
	for _, f := range facts {
		if f == nil {
			continue
		}
		if f.FilePath == "" {
			ti.Add(f)
			continue
		}
		if _, seen := byFile[f.FilePath]; !seen {
			files = append(files, f.FilePath)
		}
		byFile[f.FilePath] = append(byFile[f.FilePath], f)
	}
	sort.Strings(files)
	for _, file := range files {
		ti.Add(parse.PrimaryType(byFile[file]))
	}
	return ti
}

// Add registers one declaration. A second declaration with the same FQN is ignored.
func (ti *TypeIndex) Add(fact *model.ClassFact) {
	if fact == nil || fact.SimpleName == "" {
		return
	}
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if _, exists := ti.byFQN[fact.FQN]; exists {
		ti.logger.Debug("Duplicate declaration ignored", zap.String("fqn", fact.FQN), zap.String("file", fact.FilePath))
		return
	}
	ti.byFQN[fact.FQN] = fact
	ti.byName[fact.SimpleName] = append(ti.byName[fact.SimpleName], fact)
	ti.byPackage[fact.Package] = append(ti.byPackage[fact.Package], fact.SimpleName)

	if n := len(ti.byName[fact.SimpleName]); n == 2 {
		ti.logger.Debug("Ambiguous simple name", zap.String("name", fact.SimpleName))
	}
}

// Resolve picks the declaration a simple name most likely refers to from code in
// contextPackage: an exact package match first, then the candidate sharing the longest
// dot-separated package prefix, then the first discovered candidate.
func (ti *TypeIndex) Resolve(simpleName, contextPackage string) Resolution {
	simpleName = util.CleanTypeName(simpleName)

	ti.mu.RLock()
	candidates := ti.byName[simpleName]
	ti.mu.RUnlock()

	switch len(candidates) {
	case 0:
		return Resolution{}
	case 1:
		return Resolution{Class: candidates[0], Candidates: 1}
	}

	res := Resolution{Ambiguous: true, Candidates: len(candidates)}
	if contextPackage != "" {
		for _, c := range candidates {
			if c.Package == contextPackage {
				res.Class = c
				return res
			}
		}

		best, bestScore, tie := candidates[0], -1, false
		for _, c := range candidates {
			score := sharedPrefix(c.Package, contextPackage)
			switch {
			case score > bestScore:
				best, bestScore, tie = c, score, false
			case score == bestScore:
				tie = true
			}
		}
		if bestScore > 0 && !tie {
			res.Class = best
			return res
		}
	}

	res.Class = candidates[0]
	res.Warning = fmt.Sprintf("ambiguous type %s has %d declarations (%s); guessed %s",
		simpleName, len(candidates), joinFQNs(candidates), candidates[0].FQN)
	return res
}

// Lookup returns the declaration with the given fully-qualified name.
func (ti *TypeIndex) Lookup(fqn string) (*model.ClassFact, bool) {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	c, ok := ti.byFQN[fqn]
	return c, ok
}

// ImportStatement returns the import line needed to use simpleName from currentPackage,
// or "" when no import is needed or the type is unknown.
func (ti *TypeIndex) ImportStatement(simpleName, currentPackage string) string {
	res := ti.Resolve(simpleName, currentPackage)
	if !res.Found() {
		return ""
	}
	if res.Warning != "" {
		ti.logger.Warn("Import hint is a best-effort guess", zap.String("warning", res.Warning))
	}
	pkg := res.Class.Package
	if pkg == "" || pkg == currentPackage || pkg == "java.lang" {
		return ""
	}
	return "import " + res.Class.FQN + ";"
}

// ImportsForTypes returns the sorted, de-duplicated import lines for the given types.
func (ti *TypeIndex) ImportsForTypes(types []string, currentPackage string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range types {
		stmt := ti.ImportStatement(t, currentPackage)
		if stmt == "" || seen[stmt] {
			continue
		}
		seen[stmt] = true
		out = append(out, stmt)
	}
	sort.Strings(out)
	return out
}

// TypesInPackage returns the simple names declared in pkg, sorted.
func (ti *TypeIndex) TypesInPackage(pkg string) []string {
	ti.mu.RLock()
	names := append([]string(nil), ti.byPackage[pkg]...)
	ti.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Candidates returns every declaration registered under the simple name, in discovery order.
func (ti *TypeIndex) Candidates(simpleName string) []*model.ClassFact {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return append([]*model.ClassFact(nil), ti.byName[simpleName]...)
}

func (ti *TypeIndex) Statistics() Stats {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	stats := Stats{
		TotalTypes:  len(ti.byFQN),
		UniqueNames: len(ti.byName),
		Packages:    len(ti.byPackage),
	}
	for _, c := range ti.byName {
		if len(c) > 1 {
			stats.AmbiguousNames++
		}
	}
	return stats
}

func sharedPrefix(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}

func joinFQNs(facts []*model.ClassFact) string {
	names := make([]string, len(facts))
	for i, f := range facts {
		names[i] = f.FQN
	}
	return strings.Join(names, ", ")
}

// Package retrieval assembles ranked code context for a method under test from the
// embedding store, the type index and static analysis of the target class.
package retrieval

import (
	"context"
	"regexp"
	"sort"

	"github.com/armchr/testgen/internal/index"
	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/resolve"
	"github.com/armchr/testgen/internal/util"
	"go.uber.org/zap"
)

// Distances given to injected items. Lower ranks first.
const (
	DistanceSmartAnalysis      = 0.1
	DistanceExternalLibrary    = 0.15
	DistanceSmartDependency    = 0.2
	DistanceInjectedDefinition = 0.5
)

const (
	definitionSearchK = 3
	languageJava      = "java"
)

// Searcher is the embedding store as seen by retrieval.
type Searcher interface {
	Search(ctx context.Context, project, query string, topK int, filter map[string]string) ([]model.ContextItem, error)
}

// TypeLookup is the type index as seen by retrieval.
type TypeLookup interface {
	Resolve(simpleName, contextPackage string) resolve.Resolution
	Lookup(fqn string) (*model.ClassFact, bool)
}

// Retriever runs the query catalogue for a target method and merges the hits.
type Retriever struct {
	store   Searcher
	types   TypeLookup
	libs    *LibraryTable
	workers int
	logger  *zap.Logger
}

// NewRetriever creates a retriever. types and libs may be nil.
func NewRetriever(store Searcher, types TypeLookup, libs *LibraryTable, workers int, logger *zap.Logger) *Retriever {
	if workers <= 0 {
		workers = 4
	}
	return &Retriever{store: store, types: types, libs: libs, workers: workers, logger: logger}
}

// FindRelevantContext returns at most topK items in ascending distance. Store failures
// only drop the affected query; an empty result is not an error.
func (r *Retriever) FindRelevantContext(ctx context.Context, t Target, topK int) []model.ContextItem {
	if topK <= 0 {
		return nil
	}
	fact := r.targetFact(t)
	if fact != nil {
		if t.ClassFQN == "" {
			t.ClassFQN = fact.FQN
		}
		if m, ok := fact.FindMethod(t.MethodName); ok {
			if t.Signature == "" {
				t.Signature = m.Signature()
			}
			if t.Body == "" {
				t.Body = m.Body
			}
		}
	}
	pkg := t.Package()
	localImports := LocalImports(fact, r.types)

	qs := newQuerySet()
	qs.add(BaseQueries(t)...)
	if t.Signature != "" {
		for _, typ := range util.ExtractAllTypes(t.Signature) {
			qs.add(TypeQueries(typ, pkg, r.types, r.libs)...)
		}
	}
	qs.add(ImportedClassQueries(localImports)...)
	qs.add(ClassDefinitionQueries(t.ClassName())...)
	qs.add(DependencyQueries(t.Body)...)

	pool := newItemPool()
	r.runQueries(ctx, t.Project, qs.list(), topK, pool)

	r.ensureImportedDefinitions(ctx, t.Project, pool, localImports)
	r.ensureDependencyDefinitions(ctx, t.Project, pool, r.dependencyClasses(fact, t.Body), pkg)
	r.addSmartAnalysis(pool, fact)
	r.addExternalLibraries(pool, t)

	ranked := pool.sorted()
	result := append([]model.ContextItem(nil), ranked[:min(topK, len(ranked))]...)
	result = r.ensureRecordDefinitions(ctx, t.Project, result, ranked, topK)

	r.logger.Info("Retrieved context",
		zap.String("class", t.ClassFQN),
		zap.String("method", t.MethodName),
		zap.Int("queries", len(qs.list())),
		zap.Int("candidates", len(ranked)),
		zap.Int("returned", len(result)))
	return result
}

func (r *Retriever) targetFact(t Target) *model.ClassFact {
	if r.types == nil {
		return nil
	}
	if t.ClassFQN != "" {
		if fact, ok := r.types.Lookup(t.ClassFQN); ok {
			return fact
		}
	}
	if name := t.ClassName(); name != "" {
		res := r.types.Resolve(name, t.Package())
		if res.Warning != "" {
			r.logger.Warn("Target class is ambiguous", zap.String("class", name), zap.String("warning", res.Warning))
		}
		return res.Class
	}
	return nil
}

func (r *Retriever) search(ctx context.Context, project, query string, k int) []model.ContextItem {
	items, err := r.store.Search(ctx, project, query, k, map[string]string{model.MetaLanguage: languageJava})
	if err != nil {
		r.logger.Warn("Context query failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return items
}

// runQueries executes queries concurrently and merges the hits in query order, so the
// recorded provenance does not depend on scheduling.
func (r *Retriever) runQueries(ctx context.Context, project string, queries []string, k int, pool *itemPool) {
	results := util.DoWorkList(queries, r.workers, func(q string) []model.ContextItem {
		return r.search(ctx, project, q, k)
	})
	for i, items := range results {
		for _, item := range items {
			pool.add(withQuery(item, queries[i]))
		}
	}
}

func (r *Retriever) ensureImportedDefinitions(ctx context.Context, project string, pool *itemPool, imports []*model.ClassFact) {
	for _, c := range imports {
		if pool.hasDefinition(c.SimpleName) {
			continue
		}
		r.logger.Debug("Imported class lacks a definition, searching", zap.String("class", c.SimpleName))
		found := false
		for _, hit := range r.search(ctx, project, "class "+c.SimpleName, definitionSearchK) {
			if hit.IsDefinitionOf(c.SimpleName) {
				hit.Distance = DistanceInjectedDefinition
				pool.add(withQuery(hit, "imported_class_definition:"+c.SimpleName))
				found = true
				break
			}
		}
		if !found {
			pool.add(definitionItem(c, "imported_class_definition:"+c.SimpleName))
		}
	}
}

// dependencyClasses maps receivers in body to class names: the declared type when the
// receiver is a field of the target class, otherwise the inferred names.
func (r *Retriever) dependencyClasses(fact *model.ClassFact, body string) []string {
	qs := newQuerySet()
	for _, call := range MethodCalls(body) {
		if fact != nil {
			if typ := fieldType(fact, call.Receiver); typ != "" {
				qs.add(util.CleanTypeName(typ))
				continue
			}
		}
		qs.add(InferClassNames(call.Receiver)...)
	}
	return qs.list()
}

func fieldType(fact *model.ClassFact, name string) string {
	for _, f := range fact.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return ""
}

func (r *Retriever) ensureDependencyDefinitions(ctx context.Context, project string, pool *itemPool, deps []string, pkg string) {
	for _, dep := range deps {
		if dep == "" || util.IsExcludedType(dep) || pool.hasDefinition(dep) {
			continue
		}
		found := false
		for _, q := range []string{"class " + dep, "public class " + dep, "@Component class " + dep, "@Service class " + dep} {
			for _, hit := range r.search(ctx, project, q, 2) {
				if hit.IsDefinitionOf(dep) || hit.Metadata[model.MetaClassName] == dep {
					pool.add(withQuery(hit, "dependency_definition:"+q))
					found = true
				}
			}
			if found {
				break
			}
		}
		if found || r.types == nil {
			continue
		}
		if res := r.types.Resolve(dep, pkg); res.Found() {
			pool.add(definitionItem(res.Class, "dependency_definition:"+dep))
		}
	}
}

func (r *Retriever) addSmartAnalysis(pool *itemPool, fact *model.ClassFact) {
	if fact == nil {
		return
	}
	analysis := AnalyzeClass(fact)
	pool.add(analysisItem(analysis, model.ItemSmartAnalysis, DistanceSmartAnalysis))

	if r.types == nil {
		return
	}
	for _, dep := range analysis.Dependencies {
		res := r.types.Resolve(dep, fact.Package)
		if !res.Found() || res.Class.FQN == fact.FQN {
			continue
		}
		pool.add(analysisItem(AnalyzeClass(res.Class), model.ItemSmartAnalysisDependency, DistanceSmartDependency))
	}
}

func analysisItem(a *ClassAnalysis, itemType string, distance float64) model.ContextItem {
	meta := map[string]string{
		model.MetaType:      itemType,
		model.MetaClassName: a.Name,
		model.MetaPackage:   a.Package,
		model.MetaLanguage:  languageJava,
		model.MetaQuery:     itemType,
	}
	if a.IsRecord {
		meta[model.MetaKind] = string(model.KindRecord)
	}
	return model.NewContextItem(a.Format(), meta, distance)
}

func (r *Retriever) addExternalLibraries(pool *itemPool, t Target) {
	if r.libs == nil {
		return
	}
	for _, lib := range r.libs.Mentions(t.Signature + " " + t.Body) {
		if r.types != nil && r.types.Resolve(lib.Name, t.Package()).Found() {
			continue
		}
		content := "EXTERNAL LIBRARY: " + lib.Name + "\nImport: " + lib.ImportStatement() + "\n"
		if lib.ConstructorHint != "" {
			content += "Constructor: " + lib.ConstructorHint + "\n"
		}
		content += "This is an external library class - use exact import path!"
		pool.add(model.NewContextItem(content, map[string]string{
			model.MetaType:      model.ItemExternalLibrary,
			model.MetaClassName: lib.Name,
			model.MetaPackage:   lib.Package(),
			model.MetaLanguage:  languageJava,
			model.MetaQuery:     "external_library:" + lib.Name,
		}, DistanceExternalLibrary))
	}
}

var recordDeclRegex = regexp.MustCompile(`\brecord\s+([A-Z]\w*)`)

// ensureRecordDefinitions makes every record mentioned in result carry its own
// definition. Definitions come from the ranked pool, then the store, then the type
// index; to stay within topK the worst item that is not a needed definition is dropped.
func (r *Retriever) ensureRecordDefinitions(ctx context.Context, project string, result, ranked []model.ContextItem, topK int) []model.ContextItem {
	unresolved := map[string]bool{}
	for round := 0; round < 2*topK+1; round++ {
		records := r.mentionedRecords(result)
		missing := ""
		for _, name := range records {
			if !unresolved[name] && !definesRecord(result, name) {
				missing = name
				break
			}
		}
		if missing == "" {
			return result
		}

		def, ok := r.findRecordDefinition(ctx, project, missing, ranked)
		if !ok {
			r.logger.Warn("No definition available for record", zap.String("record", missing))
			unresolved[missing] = true
			continue
		}

		if len(result) >= topK {
			drop := droppable(result, records)
			if drop < 0 {
				return result
			}
			result = append(result[:drop], result[drop+1:]...)
		}
		result = append(result, def)
		sortItems(result)
	}
	return result
}

func (r *Retriever) findRecordDefinition(ctx context.Context, project, name string, ranked []model.ContextItem) (model.ContextItem, bool) {
	for _, item := range ranked {
		if item.IsRecordDefinitionOf(name) {
			return item, true
		}
	}
	for _, q := range []string{"record " + name, "public record " + name} {
		for _, hit := range r.search(ctx, project, q, 2) {
			if hit.IsRecordDefinitionOf(name) {
				return withQuery(hit, "record_definition:"+q), true
			}
		}
	}
	if r.types != nil {
		if res := r.types.Resolve(name, ""); res.Found() && res.Class.Kind == model.KindRecord {
			item := definitionItem(res.Class, "record_definition:"+name)
			if item.IsRecordDefinitionOf(name) {
				return item, true
			}
		}
	}
	return model.ContextItem{}, false
}

// mentionedRecords lists record names referenced by the items, in first-seen order.
func (r *Retriever) mentionedRecords(items []model.ContextItem) []string {
	qs := newQuerySet()
	checked := map[string]bool{}
	for _, item := range items {
		for _, m := range recordDeclRegex.FindAllStringSubmatch(item.Content, -1) {
			qs.add(m[1])
		}
		if item.Metadata[model.MetaKind] == string(model.KindRecord) {
			qs.add(item.Metadata[model.MetaClassName])
		}
		if r.types == nil {
			continue
		}
		for _, word := range capitalizedWordRegex.FindAllString(item.Content, -1) {
			if checked[word] {
				continue
			}
			checked[word] = true
			if res := r.types.Resolve(word, ""); res.Found() && res.Class.Kind == model.KindRecord {
				qs.add(word)
			}
		}
	}
	return qs.list()
}

func definesRecord(items []model.ContextItem, name string) bool {
	for _, item := range items {
		if item.IsRecordDefinitionOf(name) {
			return true
		}
	}
	return false
}

// droppable returns the index of the highest-distance item that is not the definition
// of a mentioned record, or -1.
func droppable(items []model.ContextItem, records []string) int {
	for i := len(items) - 1; i >= 0; i-- {
		needed := false
		for _, name := range records {
			if items[i].IsRecordDefinitionOf(name) {
				needed = true
				break
			}
		}
		if !needed {
			return i
		}
	}
	return -1
}

// definitionItem synthesizes a definition from indexed facts, rendered like the class
// documents stored at indexing time.
func definitionItem(fact *model.ClassFact, query string) model.ContextItem {
	doc := index.ClassDocument(fact, fact.Source)
	meta := doc.Metadata
	meta[model.MetaQuery] = query
	return model.NewContextItem(doc.Content, meta, DistanceInjectedDefinition)
}

func withQuery(item model.ContextItem, query string) model.ContextItem {
	meta := make(map[string]string, len(item.Metadata)+1)
	for k, v := range item.Metadata {
		meta[k] = v
	}
	meta[model.MetaQuery] = query
	item.Metadata = meta
	return item
}

func sortItems(items []model.ContextItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Distance < items[j].Distance })
}

// itemPool deduplicates items by identity, keeping the first occurrence.
type itemPool struct {
	seen  map[string]bool
	items []model.ContextItem
}

func newItemPool() *itemPool {
	return &itemPool{seen: map[string]bool{}}
}

func (p *itemPool) add(item model.ContextItem) bool {
	id := item.Identity()
	if p.seen[id] {
		return false
	}
	p.seen[id] = true
	p.items = append(p.items, item)
	return true
}

func (p *itemPool) hasDefinition(name string) bool {
	for _, item := range p.items {
		if item.IsDefinitionOf(name) {
			return true
		}
	}
	return false
}

func (p *itemPool) sorted() []model.ContextItem {
	out := append([]model.ContextItem(nil), p.items...)
	sortItems(out)
	return out
}

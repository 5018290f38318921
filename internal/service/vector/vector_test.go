package vector

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// memoryDB is a brute-force cosine VectorDatabase for tests.
type memoryDB struct {
	collections map[string]map[string]*Document
}

func newMemoryDB() *memoryDB {
	return &memoryDB{collections: map[string]map[string]*Document{}}
}

func (m *memoryDB) CreateCollection(ctx context.Context, name string, dim int, distance DistanceMetric) error {
	m.collections[name] = map[string]*Document{}
	return nil
}

func (m *memoryDB) DeleteCollection(ctx context.Context, name string) error {
	delete(m.collections, name)
	return nil
}

func (m *memoryDB) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, ok := m.collections[name]
	return ok, nil
}

func (m *memoryDB) UpsertDocuments(ctx context.Context, name string, docs []*Document) error {
	for _, d := range docs {
		m.collections[name][d.ID] = d
	}
	return nil
}

func matches(doc *Document, filter map[string]string) bool {
	for k, v := range filter {
		if doc.Metadata[k] != v {
			return false
		}
	}
	return true
}

func (m *memoryDB) SearchSimilar(ctx context.Context, name string, q []float32, limit int, filter map[string]string) ([]*Document, []float32, error) {
	type hit struct {
		doc   *Document
		score float32
	}
	var hits []hit
	for _, d := range m.collections[name] {
		if matches(d, filter) {
			hits = append(hits, hit{d, cosine(q, d.Embedding)})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	var docs []*Document
	var scores []float32
	for _, h := range hits {
		meta := map[string]string{}
		for k, v := range h.doc.Metadata {
			meta[k] = v
		}
		docs = append(docs, &Document{ID: h.doc.ID, Content: h.doc.Content, Metadata: meta})
		scores = append(scores, h.score)
	}
	return docs, scores, nil
}

func (m *memoryDB) ExistingIDs(ctx context.Context, name string, ids []string) (map[string]bool, error) {
	found := map[string]bool{}
	for _, id := range ids {
		if _, ok := m.collections[name][id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (m *memoryDB) DeleteByFilter(ctx context.Context, name string, filter map[string]string) error {
	for id, d := range m.collections[name] {
		if matches(d, filter) {
			delete(m.collections[name], id)
		}
	}
	return nil
}

func (m *memoryDB) Count(ctx context.Context, name string, filter map[string]string) (uint64, error) {
	var n uint64
	for _, d := range m.collections[name] {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (m *memoryDB) Close() error                     { return nil }
func (m *memoryDB) Health(ctx context.Context) error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// keywordEmbedder maps text to a vector of keyword hits.
type keywordEmbedder struct {
	keywords []string
	calls    int
}

func (k *keywordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	k.calls++
	v := make([]float32, len(k.keywords)+1)
	v[len(k.keywords)] = 0.01
	for i, kw := range k.keywords {
		if strings.Contains(text, kw) {
			v[i] = 1
		}
	}
	return v, nil
}

func (k *keywordEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = k.GenerateEmbedding(ctx, t)
	}
	return out, nil
}

func (k *keywordEmbedder) GetDimension() int    { return len(k.keywords) + 1 }
func (k *keywordEmbedder) GetModelName() string { return "keyword" }

func TestCodeStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store := NewCodeStore(db, &keywordEmbedder{keywords: []string{"Invoice", "Order", "Customer"}}, "java_code", zap.NewNop())

	docs := []string{
		"public class InvoiceService { Invoice create(Order o) {} }",
		"public class OrderRepository { Order find(long id) {} }",
		"public class CustomerService {}",
	}
	metas := []map[string]string{
		{"type": "class", "class_name": "InvoiceService", "language": "java"},
		{"type": "class", "class_name": "OrderRepository", "language": "java"},
		{"type": "class", "class_name": "CustomerService", "language": "java"},
	}
	ids, err := store.AddBatch(ctx, "demo", docs, metas)
	if err != nil {
		t.Fatalf("AddBatch() error = %v", err)
	}
	if len(ids) != 3 || ids[0] == ids[1] {
		t.Fatalf("unexpected ids: %v", ids)
	}

	// re-adding identical content keeps the same id
	again, err := store.Add(ctx, "demo", docs[0], metas[0])
	if err != nil || again != ids[0] {
		t.Errorf("Add() = %q, %v; want %q", again, err, ids[0])
	}
	existing, err := store.Existing(ctx, []string{ids[1], "missing"})
	if err != nil || !existing[ids[1]] || existing["missing"] {
		t.Errorf("Existing() = %v, %v", existing, err)
	}
	if n, _ := store.CountProject(ctx, "demo"); n != 3 {
		t.Errorf("CountProject() = %d, want 3", n)
	}

	items, err := store.Search(ctx, "demo", "Invoice Order", 2, map[string]string{"language": "java"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Metadata["class_name"] != "InvoiceService" {
		t.Errorf("best match = %s, want InvoiceService", items[0].Metadata["class_name"])
	}
	if items[0].Distance > items[1].Distance {
		t.Errorf("items not ascending by distance: %v, %v", items[0].Distance, items[1].Distance)
	}
	if _, ok := items[0].Metadata[MetaProject]; ok {
		t.Error("project key should not leak into item metadata")
	}

	other, err := store.Search(ctx, "other", "Invoice", 5, nil)
	if err != nil || len(other) != 0 {
		t.Errorf("Search(other) = %d items, %v; want none", len(other), err)
	}

	if err := store.DeleteProject(ctx, "demo"); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if n, _ := store.CountProject(ctx, "demo"); n != 0 {
		t.Errorf("CountProject() after delete = %d", n)
	}
}

func TestDocumentID_IgnoresQueryProvenance(t *testing.T) {
	a := DocumentID("p", "class A {}", map[string]string{"type": "class", "query": "x"})
	b := DocumentID("p", "class A {}", map[string]string{"type": "class", "query": "y"})
	c := DocumentID("q", "class A {}", map[string]string{"type": "class"})
	if a != b {
		t.Error("query metadata must not change the id")
	}
	if a == c {
		t.Error("different projects must not share ids")
	}
}

func TestCachedEmbedding(t *testing.T) {
	inner := &keywordEmbedder{keywords: []string{"a", "b"}}
	cached, err := NewCachedEmbedding(inner, CacheConfig{InMemory: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCachedEmbedding() error = %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.GenerateEmbeddings(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("GenerateEmbeddings() error = %v", err)
	}
	second, err := cached.GenerateEmbeddings(ctx, []string{"b", "ab", "a"})
	if err != nil {
		t.Fatalf("GenerateEmbeddings() error = %v", err)
	}

	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
	if second[0][1] != first[1][1] || second[2][0] != first[0][0] {
		t.Errorf("cached vectors differ: %v vs %v", second, first)
	}
	if hits, misses := cached.CacheStats(); hits != 2 || misses != 3 {
		t.Errorf("CacheStats() = %d, %d; want 2, 3", hits, misses)
	}
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -2.25, float32(math.Pi)}
	got := decodeVector(encodeVector(v))
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("decodeVector()[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestRateLimitedEmbedding_CancelledContext(t *testing.T) {
	r := NewRateLimitedEmbedding(&keywordEmbedder{}, 0.001)
	ctx := context.Background()
	if _, err := r.GenerateEmbedding(ctx, "x"); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := r.GenerateEmbedding(ctx, "x"); err == nil {
		t.Error("expected error once the limiter must wait on a cancelled context")
	}
}

func TestOllamaEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/api/embeddings" || req.Model != "nomic-embed-text" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{0.5, 0.25}})
	}))
	defer server.Close()

	emb, err := NewOllamaEmbedding(OllamaEmbeddingConfig{APIURL: server.URL}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if emb.GetDimension() != 768 {
		t.Errorf("GetDimension() = %d, want 768", emb.GetDimension())
	}

	vecs, err := emb.GenerateEmbeddings(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("GenerateEmbeddings() error = %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 0.5 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
	if _, err := emb.GenerateEmbedding(context.Background(), "  "); err == nil {
		t.Error("expected error for blank text")
	}
}

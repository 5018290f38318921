package util

import (
	"testing"

	"github.com/armchr/testgen/internal/config"
	"go.uber.org/zap"
)

func TestBloomFilterManager_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := config.BloomFilterConfig{Enabled: true, StorageDir: dir, ExpectedItems: 1000, FalsePositiveRate: 0.001}

	bfm, err := NewBloomFilterManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBloomFilterManager() error = %v", err)
	}

	key := DocumentKey("com.acme.Foo#bar", "public int bar() { return 1; }")
	if bfm.Test("demo", key) {
		t.Fatal("fresh filter should not contain key")
	}
	bfm.Add("demo", key)
	if err := bfm.Save("demo"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := NewBloomFilterManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBloomFilterManager() error = %v", err)
	}
	if !reloaded.Test("demo", key) {
		t.Error("reloaded filter should contain key")
	}

	if err := reloaded.Delete("demo"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if reloaded.Test("demo", key) {
		t.Error("filter should be empty after Delete")
	}
}

func TestBloomFilterManager_Disabled(t *testing.T) {
	if _, err := NewBloomFilterManager(config.BloomFilterConfig{}, zap.NewNop()); err == nil {
		t.Error("expected error for disabled bloom filter")
	}
}

func TestDocumentKeyChangesWithContent(t *testing.T) {
	if DocumentKey("id", "a") == DocumentKey("id", "b") {
		t.Error("DocumentKey should depend on content")
	}
	if DocumentKey("id", "a") != DocumentKey("id", "a") {
		t.Error("DocumentKey should be deterministic")
	}
}

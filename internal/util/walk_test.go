package util

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestWalkSourceFiles_SortedAndSkipped(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"src/main/java/com/b/B.java",
		"src/main/java/com/a/A.java",
		"src/main/java/com/a/notes.txt",
		"src/test/java/com/a/ATest.java",
		"target/classes/Gen.java",
	}
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("class X {}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := WalkSourceFiles(root, ".java", IsJavaTestPath, zap.NewNop())
	if err != nil {
		t.Fatalf("WalkSourceFiles() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "src/main/java/com/a/A.java"),
		filepath.Join(root, "src/main/java/com/b/B.java"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWalkSourceFiles_MissingRoot(t *testing.T) {
	if _, err := WalkSourceFiles(filepath.Join(t.TempDir(), "nope"), ".java", nil, zap.NewNop()); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestIsJavaTestPath(t *testing.T) {
	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"src/test", true, true},
		{"src/main/java/com/acme/Foo.java", false, false},
		{"src/main/java/com/acme/FooTest.java", false, true},
		{"src/main/java/com/acme/FooTests.java", false, true},
		{"tests/Foo.java", false, true},
		{"src/main/java/com/latest/Foo.java", false, false},
		{"src/main", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := IsJavaTestPath(tt.rel, tt.isDir); got != tt.want {
				t.Errorf("IsJavaTestPath(%q, %v) = %v, want %v", tt.rel, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestDoWorkListPreservesOrder(t *testing.T) {
	in := []int{5, 4, 3, 2, 1}
	out := DoWorkList(in, 2, func(n int) int { return n * 10 })
	for i, n := range in {
		if out[i] != n*10 {
			t.Errorf("out[%d] = %d, want %d", i, out[i], n*10)
		}
	}
}

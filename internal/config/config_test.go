package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TESTGEN_HOST", "qdrant.local")
	os.Unsetenv("TESTGEN_MISSING")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"braces set", "host: ${TESTGEN_HOST}", "host: qdrant.local"},
		{"braces default unused", "host: ${TESTGEN_HOST:-x}", "host: qdrant.local"},
		{"braces default used", "host: ${TESTGEN_MISSING:-fallback}", "host: fallback"},
		{"braces unset no default", "host: ${TESTGEN_MISSING}", "host: "},
		{"simple set", "host: $TESTGEN_HOST", "host: qdrant.local"},
		{"simple unset kept", "host: $TESTGEN_MISSING", "host: $TESTGEN_MISSING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TESTGEN_MODEL", "codellama")

	app := writeFile(t, dir, "app.yaml", `
app:
  port: 9000
llm:
  provider: ollama
  model: ${TESTGEN_MODEL}
  retry_delay: 500ms
generation:
  fix_strategy: compile-only
  max_compile_attempts: 2
`)
	source := writeFile(t, dir, "source.yaml", `
source:
  projects:
    - name: demo
      path: /src/demo
`)

	cfg, err := LoadConfig(app, source)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.App.Port != 9000 {
		t.Errorf("App.Port = %d, want 9000", cfg.App.Port)
	}
	if cfg.LLM.Model != "codellama" {
		t.Errorf("LLM.Model = %q, want codellama", cfg.LLM.Model)
	}
	if cfg.LLM.RetryDelay != 500*time.Millisecond {
		t.Errorf("LLM.RetryDelay = %v, want 500ms", cfg.LLM.RetryDelay)
	}
	project, err := cfg.GetProject("demo")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if project.Path != "/src/demo" {
		t.Errorf("project.Path = %q", project.Path)
	}
	if _, err := cfg.GetProject("other"); err == nil {
		t.Error("expected error for unknown project")
	}

	gen := cfg.Generation.GetDefaults()
	if gen.MaxCompileAttempts != 2 || gen.MaxRuntimeAttempts != 3 {
		t.Errorf("attempt defaults = %d/%d, want 2/3", gen.MaxCompileAttempts, gen.MaxRuntimeAttempts)
	}
	if gen.UseRAG == nil || !*gen.UseRAG {
		t.Error("UseRAG should default to true")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		app    string
		source string
	}{
		{"bad strategy", "generation:\n  fix_strategy: sometimes\n", ""},
		{"bad mode", "generation:\n  context_mode: psychic\n", ""},
		{"bad driver", "class_store:\n  driver: oracle\n", ""},
		{"project without path", "app:\n  port: 1\n", "source:\n  projects:\n    - name: x\n"},
		{"duplicate project", "app:\n  port: 1\n", "source:\n  projects:\n    - {name: x, path: /a}\n    - {name: x, path: /b}\n"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := writeFile(t, dir, filepath.Base(t.Name())+"app.yaml", tt.app)
			source := ""
			if tt.source != "" {
				source = writeFile(t, dir, filepath.Base(t.Name())+"source.yaml", tt.source)
			}
			if _, err := LoadConfig(app, source); err == nil {
				t.Errorf("case %d: expected error", i)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"), ""); err == nil {
		t.Error("expected error for missing app config")
	}
}

func TestGetDefaults(t *testing.T) {
	llm := (&LLMConfig{Provider: "claude"}).GetDefaults()
	if llm.Model != "claude-3-5-haiku-20241022" || llm.MaxRetries != 3 || llm.NumCtx != 32000 {
		t.Errorf("unexpected llm defaults: %+v", llm)
	}
	emb := (&EmbeddingConfig{Provider: "openai"}).GetDefaults()
	if emb.Dimension != 1536 || emb.URL != "" {
		t.Errorf("unexpected embedding defaults: %+v", emb)
	}
	q := (&QdrantConfig{}).GetDefaults()
	if q.Port != 6334 || q.Collection != "java_code" {
		t.Errorf("unexpected qdrant defaults: %+v", q)
	}
	cs := (&ClassStoreConfig{}).GetDefaults()
	if cs.Driver != "sqlite" {
		t.Errorf("unexpected class store defaults: %+v", cs)
	}
}

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v2"
)

type SourceConfig struct {
	Projects []Project `yaml:"projects"`
}

// Project is one Java project that can be indexed and targeted for test generation.
type Project struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	GroupID  string `yaml:"group_id,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type App struct {
	Port      int    `yaml:"port"`
	WorkDir   string `yaml:"workdir,omitempty"`
	DebugHTTP bool   `yaml:"debug_http,omitempty"` // Log full request/response bodies
	LogLevel  string `yaml:"log_level,omitempty"`  // debug, info, warn, error (default: info)
}

func (a *App) GetDefaults() App {
	result := *a
	if result.Port == 0 {
		result.Port = 8282
	}
	if result.WorkDir == "" {
		result.WorkDir = "./.testgen"
	}
	if result.LogLevel == "" {
		result.LogLevel = "info"
	}
	return result
}

// LLMConfig selects and configures the code generation backend.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // ollama, claude, openai
	Model       string        `yaml:"model"`
	URL         string        `yaml:"url"` // Ollama API URL
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"` // For OpenAI API-compatible services
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	NumCtx      int           `yaml:"num_ctx"`
}

func (c *LLMConfig) GetDefaults() LLMConfig {
	result := *c
	if result.Provider == "" {
		result.Provider = "ollama"
	}
	if result.URL == "" {
		result.URL = "http://localhost:11434"
	}
	if result.Model == "" {
		switch result.Provider {
		case "claude":
			result.Model = "claude-3-5-haiku-20241022"
		case "openai":
			result.Model = "gpt-4o-mini"
		default:
			result.Model = "qwen2.5-coder:7b"
		}
	}
	if result.MaxRetries == 0 {
		result.MaxRetries = 3
	}
	if result.RetryDelay == 0 {
		result.RetryDelay = 2 * time.Second
	}
	if result.Timeout == 0 {
		result.Timeout = 5 * time.Minute
	}
	if result.Temperature == 0 {
		result.Temperature = 0.2
	}
	if result.NumCtx == 0 {
		result.NumCtx = 32000
	}
	return result
}

// EmbeddingConfig configures the embedding model used for indexing and retrieval.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // ollama, openai
	URL               string  `yaml:"url"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension"`
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheDir          string  `yaml:"cache_dir"` // badger directory, empty disables the cache
}

func (c *EmbeddingConfig) GetDefaults() EmbeddingConfig {
	result := *c
	if result.Provider == "" {
		result.Provider = "ollama"
	}
	if result.URL == "" && result.Provider == "ollama" {
		result.URL = "http://localhost:11434"
	}
	if result.Model == "" {
		if result.Provider == "openai" {
			result.Model = "text-embedding-3-small"
		} else {
			result.Model = "nomic-embed-text"
		}
	}
	if result.Dimension == 0 {
		if result.Provider == "openai" {
			result.Dimension = 1536
		} else {
			result.Dimension = 768
		}
	}
	if result.RequestsPerSecond == 0 {
		result.RequestsPerSecond = 20
	}
	return result
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"apikey"`
	Collection string `yaml:"collection"`
}

func (c *QdrantConfig) GetDefaults() QdrantConfig {
	result := *c
	if result.Host == "" {
		result.Host = "localhost"
	}
	if result.Port == 0 {
		result.Port = 6334
	}
	if result.Collection == "" {
		result.Collection = "java_code"
	}
	return result
}

// ClassStoreConfig selects the relational backend holding class facts and sessions.
type ClassStoreConfig struct {
	Driver     string `yaml:"driver"` // sqlite, mysql
	SQLitePath string `yaml:"sqlite_path"`
}

func (c *ClassStoreConfig) GetDefaults() ClassStoreConfig {
	result := *c
	if result.Driver == "" {
		result.Driver = "sqlite"
	}
	if result.SQLitePath == "" {
		result.SQLitePath = "testgen.db"
	}
	return result
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// GenerationConfig holds the defaults applied to generate-test requests.
type GenerationConfig struct {
	ContextMode           string `yaml:"context_mode"` // rag, context-aware, none
	UseRAG                *bool  `yaml:"use_rag"`
	TestStyle             string `yaml:"test_style"`
	FixStrategy           string `yaml:"fix_strategy"` // compile-only, runtime-only, both
	MaxCompileAttempts    int    `yaml:"max_compile_attempts"`
	MaxRuntimeAttempts    int    `yaml:"max_runtime_attempts"`
	TopK                  int    `yaml:"top_k"`
	OutputDir             string `yaml:"output_dir"`
	KnownTypesFile        string `yaml:"known_types_file"`        // overrides the embedded escape-hatch table
	ExternalLibrariesFile string `yaml:"external_libraries_file"` // overrides the embedded library table
	PromptsFile           string `yaml:"prompts_file"`            // overrides the embedded prompt templates
}

func (c *GenerationConfig) GetDefaults() GenerationConfig {
	result := *c
	if result.ContextMode == "" {
		result.ContextMode = "rag"
	}
	if result.UseRAG == nil {
		useRAG := true
		result.UseRAG = &useRAG
	}
	if result.TestStyle == "" {
		result.TestStyle = "comprehensive"
	}
	if result.FixStrategy == "" {
		result.FixStrategy = "both"
	}
	if result.MaxCompileAttempts == 0 {
		result.MaxCompileAttempts = 3
	}
	if result.MaxRuntimeAttempts == 0 {
		result.MaxRuntimeAttempts = 3
	}
	if result.TopK == 0 {
		result.TopK = 10
	}
	if result.OutputDir == "" {
		result.OutputDir = "generated_tests"
	}
	return result
}

// CompilerConfig configures compilation and execution of generated tests.
type CompilerConfig struct {
	BuildTool      string        `yaml:"build_tool"` // maven, javac, auto
	Classpath      string        `yaml:"classpath"`  // javac only
	CompileTimeout time.Duration `yaml:"compile_timeout"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	MavenArgs      []string      `yaml:"maven_args"`
	JavaHome       string        `yaml:"java_home"`
}

func (c *CompilerConfig) GetDefaults() CompilerConfig {
	result := *c
	if result.BuildTool == "" {
		result.BuildTool = "auto"
	}
	if result.CompileTimeout == 0 {
		result.CompileTimeout = 3 * time.Minute
	}
	if result.RunTimeout == 0 {
		result.RunTimeout = 5 * time.Minute
	}
	return result
}

type BloomFilterConfig struct {
	Enabled           bool    `yaml:"enabled"`
	StorageDir        string  `yaml:"storage_dir"`
	ExpectedItems     uint    `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

type IndexConfig struct {
	Workers   int `yaml:"workers"`    // parallel file parsers
	BatchSize int `yaml:"batch_size"` // documents per vector upsert
}

func (c *IndexConfig) GetDefaults() IndexConfig {
	result := *c
	if result.Workers == 0 {
		result.Workers = 4
	}
	if result.BatchSize == 0 {
		result.BatchSize = 32
	}
	return result
}

type Config struct {
	Source      SourceConfig      `yaml:"source"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Qdrant      QdrantConfig      `yaml:"qdrant"`
	ClassStore  ClassStoreConfig  `yaml:"class_store"`
	MySQL       MySQLConfig       `yaml:"mysql"`
	Generation  GenerationConfig  `yaml:"generation"`
	Compiler    CompilerConfig    `yaml:"compiler"`
	BloomFilter BloomFilterConfig `yaml:"bloom_filter"`
	Index       IndexConfig       `yaml:"index"`
	App         App               `yaml:"app"`
}

var (
	envBracesRegex = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)
	envSimpleRegex = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in the given string
// Supports formats: ${VAR}, $VAR, ${VAR:-default}
func expandEnvVars(s string) string {
	s = envBracesRegex.ReplaceAllStringFunc(s, func(match string) string {
		parts := envBracesRegex.FindStringSubmatch(match)
		if len(parts) >= 2 {
			defaultValue := ""
			if len(parts) >= 4 {
				defaultValue = parts[3]
			}
			if val, ok := os.LookupEnv(parts[1]); ok {
				return val
			}
			return defaultValue
		}
		return match
	})

	// $VAR without braces is left untouched when unset
	s = envSimpleRegex.ReplaceAllStringFunc(s, func(match string) string {
		parts := envSimpleRegex.FindStringSubmatch(match)
		if len(parts) >= 2 {
			if val, ok := os.LookupEnv(parts[1]); ok {
				return val
			}
		}
		return match
	})

	return s
}

func LoadConfig(appConfigPath string, sourceConfigPath string) (*Config, error) {
	if _, err := os.Stat(appConfigPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("app config file does not exist: %s", appConfigPath)
	}

	dataApp, err := os.ReadFile(appConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read app config file: %w", err)
	}
	dataApp = []byte(expandEnvVars(string(dataApp)))

	var configApp Config
	if err := yaml.Unmarshal(dataApp, &configApp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal app config: %w", err)
	}

	// The source file is optional: a single-project CLI run can pass --project instead.
	if sourceConfigPath != "" {
		if _, err := os.Stat(sourceConfigPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("source config file does not exist: %s", sourceConfigPath)
		}
		dataSource, err := os.ReadFile(sourceConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read source config file: %w", err)
		}
		dataSource = []byte(expandEnvVars(string(dataSource)))

		var configSource Config
		if err := yaml.Unmarshal(dataSource, &configSource); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source config: %w", err)
		}
		configApp.Source = configSource.Source
	}

	if err := validateProjects(&configApp); err != nil {
		return nil, fmt.Errorf("invalid project configuration: %w", err)
	}
	if err := validateGeneration(&configApp); err != nil {
		return nil, fmt.Errorf("invalid generation configuration: %w", err)
	}

	return &configApp, nil
}

func (c *Config) GetProject(name string) (*Project, error) {
	for _, project := range c.Source.Projects {
		if project.Name == name {
			p := project
			return &p, nil
		}
	}
	return nil, fmt.Errorf("project not found: %s", name)
}

// validateProjects validates project configurations
func validateProjects(config *Config) error {
	seen := make(map[string]bool)
	for _, project := range config.Source.Projects {
		if project.Name == "" {
			return fmt.Errorf("project with path '%s' has no name", project.Path)
		}
		if project.Path == "" {
			return fmt.Errorf("project '%s': path is required", project.Name)
		}
		if seen[project.Name] {
			return fmt.Errorf("project '%s' is declared twice", project.Name)
		}
		seen[project.Name] = true
	}
	return nil
}

func validateGeneration(config *Config) error {
	switch config.Generation.FixStrategy {
	case "", "compile-only", "runtime-only", "both":
	default:
		return fmt.Errorf("unknown fix_strategy '%s'", config.Generation.FixStrategy)
	}
	switch config.Generation.ContextMode {
	case "", "rag", "context-aware", "none":
	default:
		return fmt.Errorf("unknown context_mode '%s'", config.Generation.ContextMode)
	}
	switch config.ClassStore.Driver {
	case "", "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown class_store driver '%s'", config.ClassStore.Driver)
	}
	if config.Generation.MaxCompileAttempts < 0 || config.Generation.MaxRuntimeAttempts < 0 {
		return fmt.Errorf("attempt bounds must not be negative")
	}
	return nil
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// ErrorClass distinguishes compile from runtime diagnostics.
type ErrorClass string

const (
	ErrorCompile ErrorClass = "compile"
	ErrorRuntime ErrorClass = "runtime"
)

// FixStrategy selects which repair phases run.
type FixStrategy string

const (
	FixCompileOnly FixStrategy = "compile-only"
	FixRuntimeOnly FixStrategy = "runtime-only"
	FixBoth        FixStrategy = "both"
)

// ParseFixStrategy converts a string to a FixStrategy.
func ParseFixStrategy(s string) (FixStrategy, error) {
	switch FixStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case FixCompileOnly:
		return FixCompileOnly, nil
	case FixRuntimeOnly:
		return FixRuntimeOnly, nil
	case FixBoth, "":
		return FixBoth, nil
	}
	return "", fmt.Errorf("invalid fix strategy: %s (valid: compile-only, runtime-only, both)", s)
}

// ContextMode selects the context pipeline.
type ContextMode string

const (
	ModeRAG          ContextMode = "rag"
	ModeContextAware ContextMode = "context-aware"
	ModeNone         ContextMode = "none"
)

// ParseContextMode converts a string to a ContextMode.
func ParseContextMode(s string) (ContextMode, error) {
	switch ContextMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRAG, "":
		return ModeRAG, nil
	case ModeContextAware:
		return ModeContextAware, nil
	case ModeNone:
		return ModeNone, nil
	}
	return "", fmt.Errorf("invalid context mode: %s (valid: rag, context-aware, none)", s)
}

// TestStyle selects the generation prompt's style fragment.
type TestStyle string

const (
	StyleComprehensive TestStyle = "comprehensive"
	StyleMinimal       TestStyle = "minimal"
	StyleBDD           TestStyle = "bdd"
	StylePerformance   TestStyle = "performance"
	StyleSecurity      TestStyle = "security"
)

// ParseTestStyle converts a string to a TestStyle.
func ParseTestStyle(s string) (TestStyle, error) {
	switch style := TestStyle(strings.ToLower(strings.TrimSpace(s))); style {
	case "":
		return StyleComprehensive, nil
	case StyleComprehensive, StyleMinimal, StyleBDD, StylePerformance, StyleSecurity:
		return style, nil
	}
	return "", fmt.Errorf("invalid test style: %s (valid: comprehensive, minimal, bdd, performance, security)", s)
}

// FixAttempt is one entry of the append-only repair log.
type FixAttempt struct {
	Index        int        `json:"index"`
	ErrorClass   ErrorClass `json:"error_class"`
	Diagnostic   string     `json:"diagnostic"`
	Hints        []string   `json:"hints,omitempty"`
	FixRequested bool       `json:"fix_requested"`
	Code         string     `json:"code,omitempty"`
	Success      bool       `json:"success"`
	CreatedAt    time.Time  `json:"created_at"`
}

// GenerationConfig is the per-request configuration of a session.
type GenerationConfig struct {
	TestStyle          TestStyle   `json:"test_style"`
	FixStrategy        FixStrategy `json:"fix_strategy"`
	ContextMode        ContextMode `json:"context_mode"`
	MaxCompileAttempts int         `json:"max_compile_attempts"`
	MaxRuntimeAttempts int         `json:"max_runtime_attempts"`
	TopK               int         `json:"top_k"`
	ForceReindex       bool        `json:"force_reindex"`
}

// GenerationSession tracks one generate-test request.
type GenerationSession struct {
	ID             string           `json:"id"`
	ClassFQN       string           `json:"class_fqn"`
	MethodName     string           `json:"method_name"`
	Config         GenerationConfig `json:"config"`
	ModeUsed       ContextMode      `json:"mode_used"`
	ContextsUsed   int              `json:"contexts_used"`
	Attempts       []FixAttempt     `json:"attempts"`
	Phases         []string         `json:"phases,omitempty"`
	Success        bool             `json:"success"`
	FinalCode      string           `json:"final_code,omitempty"`
	Error          string           `json:"error,omitempty"`
	LastDiagnostic string           `json:"last_diagnostic,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// AppendAttempt adds a new attempt to the log and returns its index in the slice.
func (s *GenerationSession) AppendAttempt(class ErrorClass, diagnostic string, hints []string) int {
	s.Attempts = append(s.Attempts, FixAttempt{
		Index:      len(s.Attempts) + 1,
		ErrorClass: class,
		Diagnostic: diagnostic,
		Hints:      hints,
		CreatedAt:  time.Now(),
	})
	return len(s.Attempts) - 1
}

// CountAttempts returns the number of attempts of the given class.
func (s *GenerationSession) CountAttempts(class ErrorClass) int {
	n := 0
	for _, a := range s.Attempts {
		if a.ErrorClass == class {
			n++
		}
	}
	return n
}

// FixRequests returns how many attempts led to a model fix request.
func (s *GenerationSession) FixRequests() int {
	n := 0
	for _, a := range s.Attempts {
		if a.FixRequested {
			n++
		}
	}
	return n
}

// Result is the outward answer of GenerateTest.
type Result struct {
	SessionID    string        `json:"session_id"`
	Success      bool          `json:"success"`
	FinalCode    string        `json:"final_code"`
	Attempts     []FixAttempt  `json:"attempts"`
	ContextsUsed int           `json:"contexts_used"`
	ModeUsed     ContextMode   `json:"mode_used"`
	Phases       []string      `json:"phases,omitempty"`
	TestFilePath string        `json:"test_file_path,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Statistics is a read-only counter snapshot.
type Statistics struct {
	Analyzed              int64 `json:"analyzed"`
	Generated             int64 `json:"generated"`
	Failed                int64 `json:"failed"`
	ContextRetrievals     int64 `json:"context_retrievals"`
	FixAttempts           int64 `json:"fix_attempts"`
	CompileFixAttempts    int64 `json:"compile_fix_attempts"`
	RuntimeFixAttempts    int64 `json:"runtime_fix_attempts"`
	ContextAwareFallbacks int64 `json:"context_aware_fallbacks"`
}

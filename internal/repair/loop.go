// Package repair drives a generated test from first draft to a passing test class:
// generate, compile, fix compile errors, run, fix runtime failures.
package repair

import (
	"context"
	"fmt"

	"github.com/armchr/testgen/internal/compiler"
	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/prompt"
	"github.com/armchr/testgen/internal/sanitize"
	"github.com/armchr/testgen/internal/service/llm"
	"go.uber.org/zap"
)

// State is a state of the generation-repair machine.
type State string

const (
	StateGenerating    State = "GENERATING"
	StateCompiling     State = "COMPILING"
	StateCompileFixing State = "COMPILE_FIXING"
	StateRunning       State = "RUNNING"
	StateRuntimeFixing State = "RUNTIME_FIXING"
	StateSucceeded     State = "SUCCEEDED"
	StateFailed        State = "FAILED"
)

const (
	PhaseCompile = "compile"
	PhaseRuntime = "runtime"
)

// Toolchain compiles and runs candidate test code. Cleanup undoes what a compile wrote.
type Toolchain interface {
	Compile(ctx context.Context, source, targetClass, pkg string) (*compiler.CompileResult, error)
	Run(ctx context.Context, artifact *compiler.Artifact, methodFilter string) (*compiler.RunResult, error)
	Cleanup(artifact *compiler.Artifact)
}

// ContextEnhancer derives extra context items from a diagnostic. The returned slice
// starts with existing.
type ContextEnhancer interface {
	Enhance(ctx context.Context, project, diagnostic string, class model.ErrorClass, existing []model.ContextItem) []model.ContextItem
}

// Request is one run of the loop.
type Request struct {
	Project  string
	Method   prompt.MethodInfo
	Contexts []model.ContextItem
	Style    model.TestStyle
	Strategy model.FixStrategy
	// MaxCompileAttempts bounds failed compile checks, MaxRuntimeAttempts failed runs.
	MaxCompileAttempts int
	MaxRuntimeAttempts int
	// InitialCode skips generation and starts from supplied test code.
	InitialCode string
}

// Outcome is the terminal state plus every state the session passed through.
type Outcome struct {
	State       State
	Transitions []State
	// Artifact is the last one the session wrote, also after a failure. Callers clean it up.
	Artifact *compiler.Artifact
}

// Loop runs sessions. It holds no per-session state and may be shared.
type Loop struct {
	llm      llm.LLMService
	prompts  *prompt.Builder
	tools    Toolchain
	enhancer ContextEnhancer
	opts     llm.GenerateOptions
	logger   *zap.Logger
}

// NewLoop creates a loop. enhancer may be nil.
func NewLoop(service llm.LLMService, prompts *prompt.Builder, tools Toolchain, enhancer ContextEnhancer, opts llm.GenerateOptions, logger *zap.Logger) *Loop {
	if prompts == nil {
		prompts = prompt.NewBuilder(nil)
	}
	return &Loop{llm: service, prompts: prompts, tools: tools, enhancer: enhancer, opts: opts, logger: logger}
}

// session is the mutable state of one run. It owns the candidate code and the
// attempt log.
type session struct {
	l        *Loop
	req      Request
	s        *model.GenerationSession
	contexts []model.ContextItem
	code     string
	state    State
	trail    []State

	compileFailures int
	runtimeFailures int
	compileFixed    bool
	// pending is the attempt whose fix awaits its check result, or -1
	pending int
	// verified is the code that last compiled, as long as artifact holds it
	verified string
	// artifact is the latest one written, compiled or not
	artifact *compiler.Artifact
}

// Run drives one session to SUCCEEDED or FAILED and records the attempt log, final code,
// error and phases on gs. Collaborator failures never escape as errors: they end the
// session FAILED with a readable message.
func (l *Loop) Run(ctx context.Context, req Request, gs *model.GenerationSession) *Outcome {
	req.MaxCompileAttempts = max(req.MaxCompileAttempts, 1)
	req.MaxRuntimeAttempts = max(req.MaxRuntimeAttempts, 1)
	if req.Strategy == "" {
		req.Strategy = model.FixBoth
	}
	r := &session{
		l:        l,
		req:      req,
		s:        gs,
		contexts: append([]model.ContextItem(nil), req.Contexts...),
		pending:  -1,
	}
	r.execute(ctx)
	gs.Success = r.state == StateSucceeded
	gs.FinalCode = r.code
	return &Outcome{State: r.state, Transitions: r.trail, Artifact: r.artifact}
}

func (r *session) execute(ctx context.Context) {
	if r.req.InitialCode != "" {
		r.code = sanitize.Sanitize(r.req.InitialCode)
		if !sanitize.Usable(r.code) {
			r.fail("supplied test code declares no class")
			return
		}
	} else if !r.generate(ctx) {
		return
	}

	switch r.req.Strategy {
	case model.FixCompileOnly:
		r.s.Phases = []string{PhaseCompile}
		if !r.compileUntilClean(ctx) {
			return
		}
	case model.FixRuntimeOnly:
		// execution needs compiled code, so a compile pre-pass always runs
		if !r.compileUntilClean(ctx) {
			r.s.Phases = []string{PhaseCompile}
			return
		}
		if r.compileFixed {
			r.s.Phases = []string{PhaseCompile, PhaseRuntime}
		} else {
			r.s.Phases = []string{PhaseRuntime}
		}
		if !r.runUntilPass(ctx) {
			return
		}
	default:
		r.s.Phases = []string{PhaseCompile}
		if !r.compileUntilClean(ctx) {
			return
		}
		r.s.Phases = append(r.s.Phases, PhaseRuntime)
		if !r.runUntilPass(ctx) {
			return
		}
	}
	r.transition(StateSucceeded)
}

func (r *session) generate(ctx context.Context) bool {
	r.transition(StateGenerating)
	p, err := r.l.prompts.Generation(r.req.Method, r.contexts, r.req.Style)
	if err != nil {
		return r.fail(fmt.Sprintf("failed to build generation prompt: %v", err))
	}
	code, err := r.l.ask(ctx, p)
	if err != nil {
		return r.fail(backendFailure(err))
	}
	if !sanitize.Usable(code) {
		return r.fail("model returned no usable test code")
	}
	r.code = code
	return true
}

// compileUntilClean alternates COMPILING and COMPILE_FIXING until the code compiles or
// the compile budget is spent. Code that already compiled unchanged is not recompiled.
func (r *session) compileUntilClean(ctx context.Context) bool {
	for {
		if r.artifact != nil && r.verified != "" && r.code == r.verified {
			r.l.logger.Debug("Code unchanged since last successful compile", zap.String("session", r.s.ID))
			return true
		}
		r.transition(StateCompiling)
		res, err := r.l.tools.Compile(ctx, r.code, r.req.Method.ClassName, r.req.Method.Package)
		if err != nil {
			return r.fail(fmt.Sprintf("compiler unavailable: %v", err))
		}
		r.track(res.Artifact)
		if res.Success {
			r.verified = r.code
			r.resolve(model.ErrorCompile, true)
			return true
		}

		r.verified = ""
		r.resolve("", false)
		r.compileFailures++
		idx := r.s.AppendAttempt(model.ErrorCompile, res.Diagnostic, prompt.ClassifyCompileError(res.Diagnostic))
		r.s.LastDiagnostic = res.Diagnostic
		r.l.logger.Info("Compilation failed",
			zap.String("session", r.s.ID),
			zap.Int("failures", r.compileFailures),
			zap.Int("max", r.req.MaxCompileAttempts))
		if r.compileFailures >= r.req.MaxCompileAttempts {
			return r.fail(fmt.Sprintf("compile fix attempts exhausted after %d failed compilations", r.compileFailures))
		}
		if !r.fix(ctx, idx, model.ErrorCompile, res.Diagnostic) {
			return false
		}
		r.compileFixed = true
	}
}

// track makes artifact the session's current one and cleans up the one it supersedes.
func (r *session) track(artifact *compiler.Artifact) {
	if artifact == nil {
		return
	}
	if r.artifact != nil && r.artifact != artifact {
		r.l.tools.Cleanup(r.artifact)
	}
	r.artifact = artifact
}

// runUntilPass alternates RUNNING and RUNTIME_FIXING. Every run is preceded by a compile
// check, so a runtime fix that breaks compilation goes through compile fixing first.
func (r *session) runUntilPass(ctx context.Context) bool {
	for {
		if !r.compileUntilClean(ctx) {
			return false
		}
		r.transition(StateRunning)
		res, err := r.l.tools.Run(ctx, r.artifact, "")
		if err != nil {
			return r.fail(fmt.Sprintf("test runner unavailable: %v", err))
		}
		if res.Success {
			r.resolve("", true)
			return true
		}

		r.resolve("", false)
		r.runtimeFailures++
		idx := r.s.AppendAttempt(model.ErrorRuntime, res.Diagnostic, prompt.ClassifyRuntimeError(res.Diagnostic))
		r.s.LastDiagnostic = res.Diagnostic
		r.l.logger.Info("Test run failed",
			zap.String("session", r.s.ID),
			zap.Int("failures", r.runtimeFailures),
			zap.Int("max", r.req.MaxRuntimeAttempts))
		if r.runtimeFailures >= r.req.MaxRuntimeAttempts {
			return r.fail(fmt.Sprintf("runtime fix attempts exhausted after %d failed runs", r.runtimeFailures))
		}
		if !r.fix(ctx, idx, model.ErrorRuntime, res.Diagnostic) {
			return false
		}
	}
}

// fix requests corrected code for the attempt at idx.
func (r *session) fix(ctx context.Context, idx int, class model.ErrorClass, diagnostic string) bool {
	if class == model.ErrorCompile {
		r.transition(StateCompileFixing)
	} else {
		r.transition(StateRuntimeFixing)
	}
	if r.l.enhancer != nil {
		before := len(r.contexts)
		r.contexts = r.l.enhancer.Enhance(ctx, r.req.Project, diagnostic, class, r.contexts)
		if added := len(r.contexts) - before; added > 0 {
			r.l.logger.Info("Added error-driven context", zap.String("session", r.s.ID), zap.Int("items", added))
		}
	}

	var p *prompt.Prompt
	var err error
	if class == model.ErrorCompile {
		p, err = r.l.prompts.CompileFix(r.req.Method, r.contexts, r.code, diagnostic)
	} else {
		p, err = r.l.prompts.RuntimeFix(r.req.Method, r.contexts, r.code, diagnostic)
	}
	if err != nil {
		return r.fail(fmt.Sprintf("failed to build fix prompt: %v", err))
	}

	attempt := &r.s.Attempts[idx]
	attempt.FixRequested = true
	code, err := r.l.ask(ctx, p)
	if err != nil {
		return r.fail(backendFailure(err))
	}
	attempt.Code = code
	if !sanitize.Usable(code) {
		return r.fail(fmt.Sprintf("model returned no usable %s fix", class))
	}
	r.code = code
	r.pending = idx
	return true
}

// resolve back-fills the pending attempt's success flag. A successful compile only
// resolves compile attempts; runtime fixes are judged by the next run. An empty class
// resolves whatever is pending.
func (r *session) resolve(class model.ErrorClass, success bool) {
	if r.pending < 0 {
		return
	}
	attempt := &r.s.Attempts[r.pending]
	if class != "" && attempt.ErrorClass != class {
		return
	}
	attempt.Success = success
	r.pending = -1
}

func (r *session) transition(to State) {
	r.l.logger.Info("Repair loop transition",
		zap.String("session", r.s.ID),
		zap.String("from", string(r.state)),
		zap.String("to", string(to)))
	r.state = to
	r.trail = append(r.trail, to)
}

func (r *session) fail(message string) bool {
	r.s.Error = message
	r.transition(StateFailed)
	return false
}

func (l *Loop) ask(ctx context.Context, p *prompt.Prompt) (string, error) {
	opts := l.opts
	if p.MaxTokens > 0 {
		opts.MaxTokens = p.MaxTokens
	}
	if p.Temperature > 0 {
		opts.Temperature = p.Temperature
	}
	resp, err := l.llm.GenerateWithSystem(ctx, p.System, p.User, opts)
	if err != nil {
		return "", err
	}
	return sanitize.Sanitize(resp.Content), nil
}

func backendFailure(err error) string {
	if llm.IsBackendError(err) {
		return err.Error()
	}
	return "generation backend exhausted: " + err.Error()
}

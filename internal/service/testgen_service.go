package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/armchr/testgen/internal/compiler"
	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/contextaware"
	"github.com/armchr/testgen/internal/index"
	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/prompt"
	"github.com/armchr/testgen/internal/repair"
	"github.com/armchr/testgen/internal/resolve"
	"github.com/armchr/testgen/internal/retrieval"
	"github.com/armchr/testgen/internal/service/llm"
	"github.com/armchr/testgen/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidRequest = errors.New("invalid request")

// ClassLister is the part of the class store the service reads directly.
type ClassLister interface {
	ListClasses(ctx context.Context, project string) ([]*model.ClassFact, error)
}

// ContextGenerator is the static-analysis context pipeline.
type ContextGenerator interface {
	GenerateContext(ctx context.Context, project *config.Project, classFQN, methodName string, forceReindex bool) (*contextaware.TestContext, error)
}

type ProjectIndexer interface {
	Build(ctx context.Context, project *config.Project, force bool) (*index.BuildResult, error)
}

type SessionSaver interface {
	SaveSession(ctx context.Context, project string, session *model.GenerationSession) error
}

// Toolchain is a per-project compiler and runner.
type Toolchain = repair.Toolchain

type ToolchainFactory func(project *config.Project) Toolchain

// Dependencies are the collaborators of a TestGenService. Searcher, Contexts, Enhancer,
// Indexer and Sessions may be nil; the matching feature is then skipped.
type Dependencies struct {
	Searcher   retrieval.Searcher
	Classes    ClassLister
	Contexts   ContextGenerator
	Enhancer   repair.ContextEnhancer
	Indexer    ProjectIndexer
	LLM        llm.LLMService
	Prompts    *prompt.Builder
	Libraries  *retrieval.LibraryTable
	Sessions   SessionSaver
	Toolchains ToolchainFactory
}

// GenerateRequest asks for a test of one method. Empty options take the configured
// generation defaults.
type GenerateRequest struct {
	Project            string `json:"project"`
	ClassName          string `json:"class_name" binding:"required"`
	MethodName         string `json:"method_name"`
	Description        string `json:"description,omitempty"`
	Signature          string `json:"signature,omitempty"`
	TestStyle          string `json:"test_style,omitempty"`
	FixStrategy        string `json:"fix_strategy,omitempty"`
	ContextMode        string `json:"context_mode,omitempty"`
	MaxCompileAttempts int    `json:"max_compile_attempts,omitempty"`
	MaxRuntimeAttempts int    `json:"max_runtime_attempts,omitempty"`
	TopK               int    `json:"top_k,omitempty"`
	ForceReindex       bool   `json:"force_reindex,omitempty"`
	// InitialCode starts the repair loop from existing test code instead of generating.
	InitialCode string `json:"initial_code,omitempty"`
}

// TypeResolution is the outward view of a type lookup.
type TypeResolution struct {
	Name       string `json:"name"`
	Found      bool   `json:"found"`
	FQN        string `json:"fqn,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Import     string `json:"import,omitempty"`
	Ambiguous  bool   `json:"ambiguous"`
	Candidates int    `json:"candidates"`
	Warning    string `json:"warning,omitempty"`
}

type counters struct {
	analyzed              atomic.Int64
	generated             atomic.Int64
	failed                atomic.Int64
	contextRetrievals     atomic.Int64
	fixAttempts           atomic.Int64
	compileFixAttempts    atomic.Int64
	runtimeFixAttempts    atomic.Int64
	contextAwareFallbacks atomic.Int64
}

// TestGenService is the outward entry point: it assembles context for a target method,
// runs the repair loop and persists the session.
type TestGenService struct {
	config     *config.Config
	generation config.GenerationConfig
	deps       Dependencies
	opts       llm.GenerateOptions
	workers    int

	toolchains  *util.SafeMap[Toolchain]
	typeIndexes *util.SafeMap[*resolve.TypeIndex]
	typeGroup   singleflight.Group

	stats  counters
	logger *zap.Logger
}

func NewTestGenService(cfg *config.Config, deps Dependencies, logger *zap.Logger) *TestGenService {
	if deps.Prompts == nil {
		deps.Prompts = prompt.NewBuilder(nil)
	}
	if deps.Libraries == nil {
		deps.Libraries = retrieval.DefaultLibraries()
	}
	if deps.Toolchains == nil {
		compilerCfg := cfg.Compiler
		deps.Toolchains = func(project *config.Project) Toolchain {
			return compiler.New(compilerCfg, project, logger)
		}
	}
	indexCfg := cfg.Index.GetDefaults()
	return &TestGenService{
		config:      cfg,
		generation:  cfg.Generation.GetDefaults(),
		deps:        deps,
		opts:        llm.OptionsFromConfig(cfg.LLM.GetDefaults()),
		workers:     indexCfg.Workers,
		toolchains:  util.NewSafeMap[Toolchain](),
		typeIndexes: util.NewSafeMap[*resolve.TypeIndex](),
		logger:      logger,
	}
}

func (s *TestGenService) GetConfig() *config.Config {
	return s.config
}

// GenerateTest runs one generation session. The error is reserved for requests that
// cannot start a session; everything that goes wrong afterwards is reported in the
// result.
func (s *TestGenService) GenerateTest(ctx context.Context, req GenerateRequest) (*model.Result, error) {
	req = splitTarget(req)
	project, gc, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	if s.deps.LLM == nil {
		return nil, errors.New("no generation backend is configured")
	}

	gs := &model.GenerationSession{
		ID:         uuid.NewString(),
		ClassFQN:   req.ClassName,
		MethodName: req.MethodName,
		Config:     gc,
		StartedAt:  time.Now(),
	}
	s.stats.analyzed.Add(1)
	s.logger.Info("Starting generation session",
		zap.String("session", gs.ID),
		zap.String("project", project.Name),
		zap.String("class", req.ClassName),
		zap.String("method", req.MethodName),
		zap.String("mode", string(gc.ContextMode)),
		zap.String("strategy", string(gc.FixStrategy)))

	method, contexts, mode := s.assembleContext(ctx, project, req, gc)
	gs.ModeUsed = mode
	gs.ContextsUsed = len(contexts)

	tools := s.toolchain(project)
	loop := repair.NewLoop(s.deps.LLM, s.deps.Prompts, tools, s.deps.Enhancer, s.opts, s.logger)
	outcome := loop.Run(ctx, repair.Request{
		Project:            project.Name,
		Method:             method,
		Contexts:           contexts,
		Style:              gc.TestStyle,
		Strategy:           gc.FixStrategy,
		MaxCompileAttempts: gc.MaxCompileAttempts,
		MaxRuntimeAttempts: gc.MaxRuntimeAttempts,
		InitialCode:        req.InitialCode,
	}, gs)
	tools.Cleanup(outcome.Artifact)
	gs.FinishedAt = time.Now()

	result := &model.Result{
		SessionID:    gs.ID,
		Success:      gs.Success,
		FinalCode:    gs.FinalCode,
		Attempts:     gs.Attempts,
		ContextsUsed: gs.ContextsUsed,
		ModeUsed:     gs.ModeUsed,
		Phases:       gs.Phases,
		Error:        gs.Error,
		Duration:     gs.FinishedAt.Sub(gs.StartedAt),
	}
	if gs.Success {
		path, err := s.writeTestFile(method, req.MethodName, gs.FinalCode)
		if err != nil {
			s.logger.Warn("Failed to write test file", zap.String("session", gs.ID), zap.Error(err))
		} else {
			result.TestFilePath = path
		}
	}

	s.record(gs, result.Duration)
	s.saveSession(ctx, project.Name, gs)

	s.logger.Info("Generation session finished",
		zap.String("session", gs.ID),
		zap.Bool("success", gs.Success),
		zap.String("mode_used", string(mode)),
		zap.Int("attempts", len(gs.Attempts)),
		zap.Int("contexts", gs.ContextsUsed),
		zap.Duration("duration", result.Duration),
		zap.String("error", gs.Error))
	return result, nil
}

// prepare validates the request and merges it with the configured defaults.
// splitTarget accepts a "pkg.Class#method" class name. An explicit method name wins.
func splitTarget(req GenerateRequest) GenerateRequest {
	class, method := retrieval.ParseTargetID(strings.TrimSpace(req.ClassName))
	if class == "" {
		return req
	}
	req.ClassName = class
	if strings.TrimSpace(req.MethodName) == "" {
		req.MethodName = method
	}
	return req
}

func (s *TestGenService) prepare(req GenerateRequest) (*config.Project, model.GenerationConfig, error) {
	var gc model.GenerationConfig
	if strings.TrimSpace(req.ClassName) == "" {
		return nil, gc, fmt.Errorf("%w: class name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.MethodName) == "" {
		return nil, gc, fmt.Errorf("%w: method name is required", ErrInvalidRequest)
	}
	project, err := s.resolveProject(req.Project)
	if err != nil {
		return nil, gc, err
	}

	d := s.generation
	if gc.TestStyle, err = model.ParseTestStyle(firstNonEmpty(req.TestStyle, d.TestStyle)); err != nil {
		return nil, gc, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if gc.FixStrategy, err = model.ParseFixStrategy(firstNonEmpty(req.FixStrategy, d.FixStrategy)); err != nil {
		return nil, gc, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	mode := req.ContextMode
	if mode == "" {
		mode = d.ContextMode
		// use_rag: false turns the default retrieval pipeline off
		if model.ContextMode(mode) == model.ModeRAG && d.UseRAG != nil && !*d.UseRAG {
			mode = string(model.ModeNone)
		}
	}
	if gc.ContextMode, err = model.ParseContextMode(mode); err != nil {
		return nil, gc, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	gc.MaxCompileAttempts = firstPositive(req.MaxCompileAttempts, d.MaxCompileAttempts)
	gc.MaxRuntimeAttempts = firstPositive(req.MaxRuntimeAttempts, d.MaxRuntimeAttempts)
	gc.TopK = firstPositive(req.TopK, d.TopK)
	gc.ForceReindex = req.ForceReindex
	return project, gc, nil
}

// resolveProject looks a project up by name. An empty name selects the only configured
// project.
func (s *TestGenService) resolveProject(name string) (*config.Project, error) {
	if name == "" {
		if len(s.config.Source.Projects) != 1 {
			return nil, fmt.Errorf("%w: project is required when %d projects are configured", ErrInvalidRequest, len(s.config.Source.Projects))
		}
		name = s.config.Source.Projects[0].Name
	}
	project, err := s.config.GetProject(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if project.Disabled {
		return nil, fmt.Errorf("%w: project %s is disabled", ErrInvalidRequest, name)
	}
	return project, nil
}

// assembleContext runs the selected context pipeline. A context-aware failure falls back
// to retrieval.
func (s *TestGenService) assembleContext(ctx context.Context, project *config.Project, req GenerateRequest, gc model.GenerationConfig) (prompt.MethodInfo, []model.ContextItem, model.ContextMode) {
	method := prompt.MethodInfo{
		ClassName: simpleName(req.ClassName),
		Package:   packageOf(req.ClassName),
		Name:      req.MethodName,
		Signature: req.Signature,
	}

	if gc.ContextMode == model.ModeContextAware {
		if s.deps.Contexts != nil {
			tc, err := s.deps.Contexts.GenerateContext(ctx, project, req.ClassName, req.MethodName, gc.ForceReindex)
			if err == nil {
				items := tc.Items()
				method.Signature = firstNonEmpty(method.Signature, tc.Core.MethodSignature)
				method.Source = tc.Core.MethodSource
				s.stats.contextRetrievals.Add(1)
				recordContext(string(model.ModeContextAware), len(items))
				return method, items, model.ModeContextAware
			}
			s.logger.Warn("Context-aware analysis failed, falling back to retrieval",
				zap.String("class", req.ClassName),
				zap.String("method", req.MethodName),
				zap.Error(err))
		} else {
			s.logger.Warn("Context-aware generator not configured, falling back to retrieval")
		}
		s.stats.contextAwareFallbacks.Add(1)
		contextFallbacksTotal.Inc()
		gc.ContextMode = model.ModeRAG
		// the failed pipeline already rebuilt the index if asked to
		gc.ForceReindex = false
	}

	s.ensureIndexed(ctx, project, gc.ForceReindex)
	types := s.typeIndex(ctx, project.Name)
	if fact, ok := types.Lookup(req.ClassName); ok {
		if m, found := fact.FindMethod(req.MethodName); found {
			method.Signature = firstNonEmpty(method.Signature, m.Signature())
			method.Source = m.Signature() + " " + m.Body
		}
	}

	if gc.ContextMode == model.ModeNone {
		return method, nil, model.ModeNone
	}
	if s.deps.Searcher == nil {
		s.logger.Warn("No embedding store configured, generating without context")
		return method, nil, model.ModeNone
	}

	retriever := retrieval.NewRetriever(s.deps.Searcher, types, s.deps.Libraries, s.workers, s.logger)
	items := retriever.FindRelevantContext(ctx, retrieval.Target{
		Project:     project.Name,
		ClassFQN:    req.ClassName,
		MethodName:  req.MethodName,
		Signature:   method.Signature,
		Description: req.Description,
	}, gc.TopK)
	s.stats.contextRetrievals.Add(1)
	recordContext(string(model.ModeRAG), len(items))
	return method, items, model.ModeRAG
}

// ensureIndexed builds the project index when it is missing or a rebuild is requested.
// Failures leave whatever index exists in place.
func (s *TestGenService) ensureIndexed(ctx context.Context, project *config.Project, force bool) {
	if s.deps.Indexer == nil {
		return
	}
	res, err := s.deps.Indexer.Build(ctx, project, force)
	if err != nil {
		s.logger.Warn("Indexing failed, continuing with existing index", zap.String("project", project.Name), zap.Error(err))
		return
	}
	if !res.AlreadyIndexed {
		s.typeIndexes.Delete(project.Name)
	}
}

// IndexProject builds the class and embedding indexes of a project.
func (s *TestGenService) IndexProject(ctx context.Context, projectName string, force bool) (*index.BuildResult, error) {
	if s.deps.Indexer == nil {
		return nil, errors.New("indexing is not configured")
	}
	project, err := s.resolveProject(projectName)
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Indexer.Build(ctx, project, force)
	if err != nil {
		return nil, fmt.Errorf("failed to index project %s: %w", project.Name, err)
	}
	s.typeIndexes.Delete(project.Name)
	return res, nil
}

// ResolveType resolves a simple type name within a project, preferring candidates close
// to contextPackage.
func (s *TestGenService) ResolveType(ctx context.Context, projectName, name, contextPackage string) (*TypeResolution, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: type name is required", ErrInvalidRequest)
	}
	project, err := s.resolveProject(projectName)
	if err != nil {
		return nil, err
	}
	types := s.typeIndex(ctx, project.Name)
	res := types.Resolve(name, contextPackage)
	out := &TypeResolution{
		Name:       name,
		Found:      res.Found(),
		Ambiguous:  res.Ambiguous,
		Candidates: res.Candidates,
		Warning:    res.Warning,
	}
	if res.Found() {
		out.FQN = res.Class.FQN
		out.Kind = string(res.Class.Kind)
		out.Import = types.ImportStatement(res.Class.SimpleName, contextPackage)
	}
	if res.Warning != "" {
		s.logger.Warn("Ambiguous type resolution", zap.String("type", name), zap.String("warning", res.Warning))
	}
	return out, nil
}

// TypeStatistics summarizes a project's type index.
func (s *TestGenService) TypeStatistics(ctx context.Context, projectName string) (*resolve.Stats, error) {
	project, err := s.resolveProject(projectName)
	if err != nil {
		return nil, err
	}
	stats := s.typeIndex(ctx, project.Name).Statistics()
	return &stats, nil
}

// GetStatistics returns a snapshot of the session counters.
func (s *TestGenService) GetStatistics() model.Statistics {
	return model.Statistics{
		Analyzed:              s.stats.analyzed.Load(),
		Generated:             s.stats.generated.Load(),
		Failed:                s.stats.failed.Load(),
		ContextRetrievals:     s.stats.contextRetrievals.Load(),
		FixAttempts:           s.stats.fixAttempts.Load(),
		CompileFixAttempts:    s.stats.compileFixAttempts.Load(),
		RuntimeFixAttempts:    s.stats.runtimeFixAttempts.Load(),
		ContextAwareFallbacks: s.stats.contextAwareFallbacks.Load(),
	}
}

// typeIndex returns the cached type index of a project, loading it from the class store
// on first use. Concurrent loads of the same project are collapsed.
func (s *TestGenService) typeIndex(ctx context.Context, project string) *resolve.TypeIndex {
	if ti, ok := s.typeIndexes.Get(project); ok {
		return ti
	}
	v, _, _ := s.typeGroup.Do(project, func() (any, error) {
		if ti, ok := s.typeIndexes.Get(project); ok {
			return ti, nil
		}
		var facts []*model.ClassFact
		if s.deps.Classes != nil {
			var err error
			facts, err = s.deps.Classes.ListClasses(ctx, project)
			if err != nil {
				s.logger.Warn("Failed to load classes for type index", zap.String("project", project), zap.Error(err))
				return resolve.NewTypeIndex(s.logger), nil
			}
		}
		ti := resolve.NewTypeIndexFromFacts(facts, s.logger)
		if len(facts) > 0 {
			s.typeIndexes.Set(project, ti)
		}
		return ti, nil
	})
	return v.(*resolve.TypeIndex)
}

func (s *TestGenService) toolchain(project *config.Project) Toolchain {
	if tc, ok := s.toolchains.Get(project.Name); ok {
		return tc
	}
	tc := s.deps.Toolchains(project)
	s.toolchains.Set(project.Name, tc)
	return tc
}

func (s *TestGenService) record(gs *model.GenerationSession, d time.Duration) {
	outcome := "failed"
	if gs.Success {
		s.stats.generated.Add(1)
		outcome = "succeeded"
	} else {
		s.stats.failed.Add(1)
	}
	recordSession(string(gs.ModeUsed), outcome, d.Seconds())

	compileFixes, runtimeFixes := 0, 0
	for _, a := range gs.Attempts {
		if !a.FixRequested {
			continue
		}
		if a.ErrorClass == model.ErrorCompile {
			compileFixes++
		} else {
			runtimeFixes++
		}
	}
	s.stats.fixAttempts.Add(int64(compileFixes + runtimeFixes))
	s.stats.compileFixAttempts.Add(int64(compileFixes))
	s.stats.runtimeFixAttempts.Add(int64(runtimeFixes))
	recordFixRequests(string(model.ErrorCompile), compileFixes)
	recordFixRequests(string(model.ErrorRuntime), runtimeFixes)
}

func (s *TestGenService) saveSession(ctx context.Context, project string, gs *model.GenerationSession) {
	if s.deps.Sessions == nil {
		return
	}
	if err := s.deps.Sessions.SaveSession(ctx, project, gs); err != nil {
		s.logger.Warn("Failed to persist session", zap.String("session", gs.ID), zap.Error(err))
	}
}

// writeTestFile stores a passing test as <output_dir>/<Class>_<method>_Test.java.
func (s *TestGenService) writeTestFile(method prompt.MethodInfo, methodName, code string) (string, error) {
	dir := s.generation.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_Test.java", method.ClassName, methodName))
	if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to write test file: %w", err)
	}
	return path, nil
}

func simpleName(fqn string) string {
	return fqn[strings.LastIndex(fqn, ".")+1:]
}

func packageOf(fqn string) string {
	if i := strings.LastIndex(fqn, "."); i >= 0 {
		return fqn[:i]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

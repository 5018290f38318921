// Package compiler compiles and runs generated JUnit 5 tests against a Java project,
// through Maven or through javac and the JUnit console launcher.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/armchr/testgen/internal/config"
	"go.uber.org/zap"
)

const (
	BuildMaven = "maven"
	BuildJavac = "javac"
	BuildAuto  = "auto"

	consoleLauncher = "org.junit.platform.console.ConsoleLauncher"
)

var skipChecks = []string{
	"-Dcheckstyle.skip=true",
	"-Dspotless.check.skip=true",
	"-Dpmd.skip=true",
	"-Dfindbugs.skip=true",
}

// Artifact identifies a test class written for compilation, whether or not it compiled.
type Artifact struct {
	TestClass  string // fully-qualified
	SourcePath string
	source     string
	// classDir and tempDir are set in javac mode only
	classDir string
	tempDir  string
}

// CompileResult is the outcome of one compile check.
type CompileResult struct {
	Success    bool
	Diagnostic string
	Artifact   *Artifact
}

// RunResult is the outcome of one test execution.
type RunResult struct {
	Success    bool
	Diagnostic string
}

// Toolchain compiles and runs tests for one project. Maven builds of the same project
// are serialized because they share the source tree and the target directory.
type Toolchain struct {
	cfg     config.CompilerConfig
	project *config.Project
	tool    string
	mvn     string
	logger  *zap.Logger

	// mu guards the Maven source tree from write through compile or run, and the maps.
	mu sync.Mutex
	// owners maps a test source path to the artifact whose code is on disk there.
	owners map[string]*Artifact
	// originals holds what a path contained before the first generated write.
	originals map[string]original
}

type original struct {
	existed bool
	data    []byte
	mode    os.FileMode
	// createdDir is the topmost directory created for the write, if any
	createdDir string
}

// New creates a toolchain. Build tool "auto" picks Maven when the project has a pom.xml.
func New(cfg config.CompilerConfig, project *config.Project, logger *zap.Logger) *Toolchain {
	cfg = cfg.GetDefaults()
	tc := &Toolchain{
		cfg:       cfg,
		project:   project,
		tool:      cfg.BuildTool,
		logger:    logger,
		owners:    make(map[string]*Artifact),
		originals: make(map[string]original),
	}
	if tc.tool == BuildAuto {
		tc.tool = detectBuildTool(project.Path)
	}
	tc.mvn = mavenCommand(project.Path)
	logger.Info("Using build tool", zap.String("project", project.Name), zap.String("tool", tc.tool))
	return tc
}

func (tc *Toolchain) BuildTool() string {
	return tc.tool
}

func detectBuildTool(projectPath string) string {
	if _, err := os.Stat(filepath.Join(projectPath, "pom.xml")); err == nil {
		return BuildMaven
	}
	return BuildJavac
}

// mavenCommand prefers an executable Maven wrapper in the project root.
func mavenCommand(projectPath string) string {
	if info, err := os.Stat(filepath.Join(projectPath, "mvnw")); err == nil && info.Mode()&0o111 != 0 {
		return "./mvnw"
	}
	return "mvn"
}

// Compile writes source as the test class of targetClass in pkg and compiles it. Timeouts
// and compiler failures are reported as unsuccessful results that still carry the
// artifact, which the caller must pass to Cleanup. Errors are reserved for problems
// running the toolchain at all, and leave nothing behind.
func (tc *Toolchain) Compile(ctx context.Context, source, targetClass, pkg string) (*CompileResult, error) {
	if pkg == "" {
		pkg = PackageName(source)
	}
	className := TestClassName(source, targetClass)
	if tc.tool == BuildMaven {
		return tc.compileMaven(ctx, source, className, pkg)
	}
	return tc.compileJavac(ctx, source, className, pkg)
}

// Run executes a compiled test class. An empty methodFilter runs every test in it.
func (tc *Toolchain) Run(ctx context.Context, artifact *Artifact, methodFilter string) (*RunResult, error) {
	if artifact == nil {
		return nil, errors.New("no compiled artifact to run")
	}
	if tc.tool == BuildMaven {
		return tc.runMaven(ctx, artifact, methodFilter)
	}
	return tc.runJavac(ctx, artifact, methodFilter)
}

// Cleanup removes the files written for an artifact. In Maven mode a test source that
// existed before the first write is restored, and directories created for it are
// removed. An artifact whose path has since been taken over by another artifact is left
// alone; that artifact's cleanup restores the path.
func (tc *Toolchain) Cleanup(artifact *Artifact) {
	if artifact == nil {
		return
	}
	if artifact.tempDir != "" {
		if err := os.RemoveAll(artifact.tempDir); err != nil {
			tc.logger.Warn("Failed to remove test sources", zap.String("path", artifact.tempDir), zap.Error(err))
		}
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.release(artifact)
}

// release restores the project tree path held by artifact. Callers hold tc.mu.
func (tc *Toolchain) release(artifact *Artifact) {
	path := artifact.SourcePath
	if tc.owners[path] != artifact {
		return
	}
	orig := tc.originals[path]
	delete(tc.owners, path)
	delete(tc.originals, path)

	if orig.existed {
		if err := os.WriteFile(path, orig.data, orig.mode); err != nil {
			tc.logger.Error("Failed to restore test source", zap.String("path", path), zap.Error(err))
		}
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		tc.logger.Warn("Failed to remove test source", zap.String("path", path), zap.Error(err))
	}
	if orig.createdDir != "" {
		for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
			// stops at the first non-empty directory
			if os.Remove(dir) != nil || dir == orig.createdDir {
				break
			}
		}
	}
}

// place puts the artifact's source on disk in the project tree, remembering what the
// path held before the first write. Callers hold tc.mu.
func (tc *Toolchain) place(artifact *Artifact) error {
	path := artifact.SourcePath
	if tc.owners[path] == artifact {
		return nil
	}
	if _, ok := tc.originals[path]; !ok {
		orig := original{mode: 0o644}
		info, err := os.Stat(path)
		switch {
		case err == nil:
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to back up existing test source: %w", err)
			}
			orig.existed, orig.data, orig.mode = true, data, info.Mode().Perm()
			tc.logger.Warn("Test source already exists, it will be restored after the session", zap.String("path", path))
		case os.IsNotExist(err):
			orig.createdDir = firstMissingDir(filepath.Dir(path))
		default:
			return fmt.Errorf("failed to inspect test source: %w", err)
		}
		tc.originals[path] = orig
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create test source dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(artifact.source), 0o644); err != nil {
		return fmt.Errorf("failed to write test source: %w", err)
	}
	tc.owners[path] = artifact
	return nil
}

// firstMissingDir returns the topmost directory of dir that does not exist yet, or "".
func firstMissingDir(dir string) string {
	missing := ""
	for {
		if _, err := os.Stat(dir); err == nil {
			return missing
		}
		missing = dir
		parent := filepath.Dir(dir)
		if parent == dir {
			return missing
		}
		dir = parent
	}
}

func (tc *Toolchain) compileMaven(ctx context.Context, source, className, pkg string) (*CompileResult, error) {
	dir := filepath.Join(tc.project.Path, "src", "test", "java", filepath.FromSlash(strings.ReplaceAll(pkg, ".", "/")))
	artifact := newArtifact(dir, className, pkg, source)

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := tc.place(artifact); err != nil {
		return nil, err
	}
	res, err := execute(ctx, command{
		Dir:     tc.project.Path,
		Name:    tc.mvn,
		Args:    mavenCompileArgs(tc.cfg.MavenArgs),
		Env:     tc.env(),
		Timeout: tc.cfg.CompileTimeout,
	}, tc.logger)
	out, err := tc.compileOutcome(res, err, artifact)
	if err != nil {
		tc.release(artifact)
	}
	return out, err
}

// runMaven puts the artifact's own source back before running, since Maven recompiles
// test sources and another session may have written the same path in between.
func (tc *Toolchain) runMaven(ctx context.Context, artifact *Artifact, methodFilter string) (*RunResult, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := tc.place(artifact); err != nil {
		return nil, err
	}
	res, err := execute(ctx, command{
		Dir:     tc.project.Path,
		Name:    tc.mvn,
		Args:    mavenTestArgs(simpleName(artifact.TestClass), methodFilter, tc.cfg.MavenArgs),
		Env:     tc.env(),
		Timeout: tc.cfg.RunTimeout,
	}, tc.logger)
	return runOutcome(res, err)
}

func (tc *Toolchain) compileJavac(ctx context.Context, source, className, pkg string) (*CompileResult, error) {
	tempDir, err := os.MkdirTemp("", "testgen-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	srcDir := filepath.Join(tempDir, "src", filepath.FromSlash(strings.ReplaceAll(pkg, ".", "/")))
	artifact, err := writeSource(srcDir, className, pkg, source)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	artifact.tempDir = tempDir
	artifact.classDir = filepath.Join(tempDir, "classes")
	if err := os.MkdirAll(artifact.classDir, 0o755); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to create class dir: %w", err)
	}

	res, err := execute(ctx, command{
		Dir:     tc.project.Path,
		Name:    tc.binary("javac"),
		Args:    javacArgs(artifact.classDir, tc.classpath(), artifact.SourcePath),
		Timeout: tc.cfg.CompileTimeout,
	}, tc.logger)
	out, err := tc.compileOutcome(res, err, artifact)
	if err != nil {
		os.RemoveAll(tempDir)
	}
	return out, err
}

func (tc *Toolchain) runJavac(ctx context.Context, artifact *Artifact, methodFilter string) (*RunResult, error) {
	cp := joinClasspath(artifact.classDir, tc.classpath())
	res, err := execute(ctx, command{
		Dir:     tc.project.Path,
		Name:    tc.binary("java"),
		Args:    launcherArgs(cp, artifact.TestClass, methodFilter),
		Timeout: tc.cfg.RunTimeout,
	}, tc.logger)
	return runOutcome(res, err)
}

func (tc *Toolchain) compileOutcome(res *commandResult, err error, artifact *Artifact) (*CompileResult, error) {
	switch {
	case errors.Is(err, ErrTimeout):
		return &CompileResult{Diagnostic: "compilation timed out: " + err.Error(), Artifact: artifact}, nil
	case err != nil:
		return nil, err
	case res.ExitCode != 0:
		diag := compileDiagnostic(res.Output)
		if diag == "" {
			diag = fmt.Sprintf("compilation failed with exit code %d", res.ExitCode)
		}
		return &CompileResult{Diagnostic: diag, Artifact: artifact}, nil
	}
	return &CompileResult{Success: true, Artifact: artifact}, nil
}

func runOutcome(res *commandResult, err error) (*RunResult, error) {
	switch {
	case errors.Is(err, ErrTimeout):
		return &RunResult{Diagnostic: "test execution timed out: " + err.Error()}, nil
	case err != nil:
		return nil, err
	case res.ExitCode != 0:
		diag := runtimeDiagnostic(res.Output)
		if diag == "" {
			diag = fmt.Sprintf("test run failed with exit code %d", res.ExitCode)
		}
		return &RunResult{Diagnostic: diag}, nil
	}
	return &RunResult{Success: true}, nil
}

func newArtifact(dir, className, pkg, source string) *Artifact {
	fqn := className
	if pkg != "" {
		fqn = pkg + "." + className
	}
	return &Artifact{TestClass: fqn, SourcePath: filepath.Join(dir, className+".java"), source: source}
}

// writeSource writes a test source outside the project tree.
func writeSource(dir, className, pkg, source string) (*Artifact, error) {
	artifact := newArtifact(dir, className, pkg, source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create test source dir: %w", err)
	}
	if err := os.WriteFile(artifact.SourcePath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write test source: %w", err)
	}
	return artifact, nil
}

// classpath is the configured classpath followed by the project's build output dirs.
func (tc *Toolchain) classpath() string {
	parts := []string{}
	if tc.cfg.Classpath != "" {
		parts = append(parts, tc.cfg.Classpath)
	}
	for _, dir := range []string{"target/classes", "target/test-classes", "build/classes/java/main", "out/production", "bin"} {
		full := filepath.Join(tc.project.Path, filepath.FromSlash(dir))
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			parts = append(parts, full)
		}
	}
	return joinClasspath(parts...)
}

func (tc *Toolchain) binary(name string) string {
	if tc.cfg.JavaHome != "" {
		return filepath.Join(tc.cfg.JavaHome, "bin", name)
	}
	return name
}

func (tc *Toolchain) env() []string {
	if tc.cfg.JavaHome != "" {
		return []string{"JAVA_HOME=" + tc.cfg.JavaHome}
	}
	return nil
}

func mavenCompileArgs(extra []string) []string {
	args := append([]string{"test-compile", "-q"}, skipChecks...)
	return append(args, extra...)
}

func mavenTestArgs(testClass, methodFilter string, extra []string) []string {
	selector := testClass
	if methodFilter != "" {
		selector += "#" + methodFilter
	}
	args := append([]string{"test", "-q", "-Dtest=" + selector}, skipChecks...)
	return append(args, extra...)
}

func javacArgs(classDir, cp, sourcePath string) []string {
	args := []string{"-d", classDir}
	if cp != "" {
		args = append(args, "-cp", cp)
	}
	return append(args, sourcePath)
}

func launcherArgs(cp, testClass, methodFilter string) []string {
	args := []string{"-cp", cp, consoleLauncher, "--disable-banner"}
	if methodFilter != "" {
		return append(args, "--select-method", testClass+"#"+methodFilter)
	}
	return append(args, "--select-class", testClass)
}

func joinClasspath(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, string(os.PathListSeparator))
}

func simpleName(fqn string) string {
	return fqn[strings.LastIndex(fqn, ".")+1:]
}

package compiler

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/armchr/testgen/internal/config"
	"go.uber.org/zap"
)

func TestTestClassName(t *testing.T) {
	tests := []struct {
		code   string
		target string
		want   string
	}{
		{"package a;\npublic class PdfComparerTest {}", "PdfComparer", "PdfComparerTest"},
		{"package a;\npublic final class ShapeTests {}", "Shape", "ShapeTests"},
		{"package a;\nclass Hidden {}", "Point", "PointTest"},
	}
	for _, tt := range tests {
		if got := TestClassName(tt.code, tt.target); got != tt.want {
			t.Errorf("TestClassName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestPackageName(t *testing.T) {
	if got := PackageName("// header\npackage com.acme.pdf;\n\npublic class T {}"); got != "com.acme.pdf" {
		t.Errorf("PackageName = %q", got)
	}
	if got := PackageName("public class T {}"); got != "" {
		t.Errorf("PackageName without declaration = %q", got)
	}
}

func TestCompileDiagnostic_Javac(t *testing.T) {
	output := `/tmp/src/com/acme/PdfComparerTest.java:12: error: cannot find symbol
        BaseColor c = BaseColor.RED;
        ^
  symbol:   class BaseColor
  location: class PdfComparerTest
Note: Some input files use unchecked or unsafe operations.
1 error`

	got := compileDiagnostic(output)
	for _, want := range []string{"error: cannot find symbol", "symbol:   class BaseColor", "location: class PdfComparerTest"} {
		if !strings.Contains(got, want) {
			t.Errorf("diagnostic missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "unchecked or unsafe") {
		t.Errorf("diagnostic kept an unrelated note:\n%s", got)
	}
}

func TestCompileDiagnostic_MavenNoise(t *testing.T) {
	output := `[ERROR] COMPILATION ERROR :
[ERROR] /p/src/test/java/com/acme/PointTest.java:[8,17] incompatible types: java.lang.String cannot be converted to int
[ERROR] -> [Help 1]
[ERROR] Re-run Maven using the -X switch to enable full debug logging.`

	got := compileDiagnostic(output)
	if !strings.Contains(got, "incompatible types") {
		t.Errorf("diagnostic lost the error: %s", got)
	}
	if strings.Contains(got, "Help 1") || strings.Contains(got, "Re-run Maven") {
		t.Errorf("diagnostic kept maven noise: %s", got)
	}
}

func TestRuntimeDiagnostic(t *testing.T) {
	output := `[INFO] Running com.acme.PointTest
[ERROR] Tests run: 2, Failures: 1, Errors: 0, Skipped: 0
[ERROR] testDistance_origin  Time elapsed: 0.01 s  <<< FAILURE!
org.opentest4j.AssertionFailedError: expected: <5> but was: <7>
	at org.junit.jupiter.api.AssertionUtils.fail(AssertionUtils.java:55)
	at com.acme.PointTest.testDistance_origin(PointTest.java:21)
[INFO] BUILD FAILURE`

	got := runtimeDiagnostic(output)
	for _, want := range []string{"Tests run: 2, Failures: 1", "expected: <5> but was: <7>", "at com.acme.PointTest.testDistance_origin"} {
		if !strings.Contains(got, want) {
			t.Errorf("diagnostic missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Running com.acme.PointTest") {
		t.Errorf("diagnostic kept an info line:\n%s", got)
	}
}

func TestDiagnosticFallsBackToOutput(t *testing.T) {
	if got := compileDiagnostic("  something odd happened  "); got != "something odd happened" {
		t.Errorf("fallback = %q", got)
	}
}

func TestCommandArgs(t *testing.T) {
	got := mavenTestArgs("PointTest", "testDistance", []string{"-o"})
	want := []string{"test", "-q", "-Dtest=PointTest#testDistance",
		"-Dcheckstyle.skip=true", "-Dspotless.check.skip=true", "-Dpmd.skip=true", "-Dfindbugs.skip=true", "-o"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mavenTestArgs = %v, want %v", got, want)
	}

	if got := mavenCompileArgs(nil); got[0] != "test-compile" || got[1] != "-q" || len(got) != 6 {
		t.Errorf("mavenCompileArgs = %v", got)
	}

	if got := launcherArgs("cp", "com.acme.PointTest", ""); !reflect.DeepEqual(got[len(got)-2:], []string{"--select-class", "com.acme.PointTest"}) {
		t.Errorf("launcherArgs = %v", got)
	}
	if got := launcherArgs("cp", "com.acme.PointTest", "testX"); got[len(got)-1] != "com.acme.PointTest#testX" {
		t.Errorf("launcherArgs with method = %v", got)
	}

	if got := javacArgs("out", "", "T.java"); !reflect.DeepEqual(got, []string{"-d", "out", "T.java"}) {
		t.Errorf("javacArgs = %v", got)
	}
}

func TestNew_DetectsBuildTool(t *testing.T) {
	dir := t.TempDir()
	project := &config.Project{Name: "demo", Path: dir}

	if tc := New(config.CompilerConfig{}, project, zap.NewNop()); tc.BuildTool() != BuildJavac {
		t.Errorf("BuildTool without pom = %s", tc.BuildTool())
	}

	if err := os.WriteFile(filepath.Join(dir, "pom.xml"), []byte("<project/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	tc := New(config.CompilerConfig{}, project, zap.NewNop())
	if tc.BuildTool() != BuildMaven {
		t.Errorf("BuildTool with pom = %s", tc.BuildTool())
	}
	if tc.mvn != "mvn" {
		t.Errorf("maven command = %s", tc.mvn)
	}

	if tc := New(config.CompilerConfig{BuildTool: BuildJavac}, project, zap.NewNop()); tc.BuildTool() != BuildJavac {
		t.Errorf("explicit build tool ignored: %s", tc.BuildTool())
	}
}

func TestWriteSourceAndCleanup(t *testing.T) {
	dir := t.TempDir()
	tc := New(config.CompilerConfig{BuildTool: BuildJavac}, &config.Project{Name: "demo", Path: dir}, zap.NewNop())

	tempDir := t.TempDir()
	artifact, err := writeSource(filepath.Join(tempDir, "src", "com", "acme"), "PointTest", "com.acme", "package com.acme;")
	if err != nil {
		t.Fatalf("writeSource: %v", err)
	}
	artifact.tempDir = tempDir
	if artifact.TestClass != "com.acme.PointTest" {
		t.Errorf("TestClass = %s", artifact.TestClass)
	}
	if _, err := os.Stat(artifact.SourcePath); err != nil {
		t.Fatalf("source not written: %v", err)
	}

	tc.Cleanup(artifact)
	if _, err := os.Stat(tempDir); !os.IsNotExist(err) {
		t.Errorf("temp dir not removed: %v", err)
	}
}

// newFailingMavenProject lays out a Maven project whose wrapper always fails to compile.
func newFailingMavenProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pom.xml"), []byte("<project/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\necho '[ERROR] /p/src/test/java/com/acme/PointTest.java:[3,9] cannot find symbol'\nexit 1\n"
	if err := os.WriteFile(filepath.Join(dir, "mvnw"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestMavenCompile_RestoresExistingTest(t *testing.T) {
	dir := newFailingMavenProject(t)
	testDir := filepath.Join(dir, "src", "test", "java", "com", "acme")
	if err := os.MkdirAll(testDir, 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(testDir, "PointTest.java")
	const handWritten = "// hand-written user test\npackage com.acme;\nclass PointTest {}\n"
	if err := os.WriteFile(existing, []byte(handWritten), 0o644); err != nil {
		t.Fatal(err)
	}

	tc := New(config.CompilerConfig{}, &config.Project{Name: "demo", Path: dir}, zap.NewNop())
	if tc.mvn != "./mvnw" {
		t.Fatalf("maven command = %s", tc.mvn)
	}

	first, err := tc.Compile(context.Background(), "package com.acme;\npublic class PointTest { broken }", "Point", "com.acme")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if first.Success || first.Artifact == nil {
		t.Fatalf("expected a failed compile with an artifact, got %+v", first)
	}
	if !strings.Contains(first.Diagnostic, "cannot find symbol") {
		t.Errorf("diagnostic = %q", first.Diagnostic)
	}
	second, err := tc.Compile(context.Background(), "package com.acme;\npublic class PointTest { still broken }", "Point", "com.acme")
	if err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	data, _ := os.ReadFile(existing)
	if !strings.Contains(string(data), "still broken") {
		t.Errorf("latest source not on disk: %s", data)
	}

	// the superseded artifact no longer owns the path
	tc.Cleanup(first.Artifact)
	if data, _ := os.ReadFile(existing); !strings.Contains(string(data), "still broken") {
		t.Errorf("superseded cleanup touched the file: %s", data)
	}

	tc.Cleanup(second.Artifact)
	data, err = os.ReadFile(existing)
	if err != nil {
		t.Fatalf("hand-written test removed: %v", err)
	}
	if string(data) != handWritten {
		t.Errorf("hand-written test not restored:\n%s", data)
	}
}

func TestMavenCompile_RemovesCreatedDirs(t *testing.T) {
	dir := newFailingMavenProject(t)
	tc := New(config.CompilerConfig{}, &config.Project{Name: "demo", Path: dir}, zap.NewNop())

	res, err := tc.Compile(context.Background(), "package com.acme.geo;\npublic class PointTest {}", "Point", "com.acme.geo")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := os.Stat(res.Artifact.SourcePath); err != nil {
		t.Fatalf("source not written: %v", err)
	}

	tc.Cleanup(res.Artifact)
	if _, err := os.Stat(filepath.Join(dir, "src")); !os.IsNotExist(err) {
		t.Errorf("created source tree left behind: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pom.xml")); err != nil {
		t.Errorf("project file removed: %v", err)
	}
}

func TestMavenCleanup_KeepsUnrelatedFiles(t *testing.T) {
	dir := newFailingMavenProject(t)
	testDir := filepath.Join(dir, "src", "test", "java", "com", "acme")
	if err := os.MkdirAll(testDir, 0o755); err != nil {
		t.Fatal(err)
	}
	sibling := filepath.Join(testDir, "LineTest.java")
	if err := os.WriteFile(sibling, []byte("class LineTest {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	tc := New(config.CompilerConfig{}, &config.Project{Name: "demo", Path: dir}, zap.NewNop())

	res, err := tc.Compile(context.Background(), "package com.acme;\npublic class PointTest {}", "Point", "com.acme")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	tc.Cleanup(res.Artifact)

	if _, err := os.Stat(res.Artifact.SourcePath); !os.IsNotExist(err) {
		t.Errorf("generated source not removed: %v", err)
	}
	if _, err := os.Stat(sibling); err != nil {
		t.Errorf("sibling test removed: %v", err)
	}
}

func TestMavenCompile_MissingBinaryLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	tc := New(config.CompilerConfig{BuildTool: BuildMaven}, &config.Project{Name: "demo", Path: dir}, zap.NewNop())
	tc.mvn = filepath.Join(dir, "no-such-mvn")

	if _, err := tc.Compile(context.Background(), "package com.acme;\npublic class PointTest {}", "Point", "com.acme"); err == nil {
		t.Fatal("expected an error for a missing build tool")
	}
	if _, err := os.Stat(filepath.Join(dir, "src")); !os.IsNotExist(err) {
		t.Errorf("source tree left behind: %v", err)
	}
}

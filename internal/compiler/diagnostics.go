package compiler

import (
	"regexp"
	"strings"
)

const (
	maxDiagnosticLines = 80
	followLines        = 4
)

var (
	publicClassNameRegex = regexp.MustCompile(`public\s+(?:(?:final|abstract)\s+)*class\s+(\w+)`)
	packageNameRegex     = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)
)

var mavenNoise = []string{
	"-> [help", "re-run maven", "for more information about the errors",
	"to see the full stack trace", "[help 1]", "after correcting the problems",
}

var (
	compileMarkers = []string{"error:", "[error]", "compilation failure", "failed to compile", "错误"}
	runtimeMarkers = []string{
		"tests run:", "failure", "failed", "error", "exception", "assertion",
		"expected", "but was", "✘",
	}
)

// TestClassName returns the name of the first public class in code, or target+"Test".
func TestClassName(code, target string) string {
	if m := publicClassNameRegex.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return target + "Test"
}

// PackageName returns the package declared by code, or "".
func PackageName(code string) string {
	if m := packageNameRegex.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return ""
}

// compileDiagnostic keeps error lines and the few lines that follow each one, which is
// where javac prints the offending source, symbol and location.
func compileDiagnostic(output string) string {
	return extract(output, compileMarkers, func(string) bool { return true })
}

// runtimeDiagnostic keeps failure lines and the top stack frames under each one.
func runtimeDiagnostic(output string) string {
	return extract(output, runtimeMarkers, func(line string) bool {
		return strings.HasPrefix(line, "at ") || strings.HasPrefix(line, "Caused by")
	})
}

func extract(output string, markers []string, follows func(string) bool) string {
	var kept []string
	follow := 0
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			follow = 0
			continue
		}
		lower := strings.ToLower(line)
		if containsAny(lower, mavenNoise) {
			continue
		}
		switch {
		case containsAny(lower, markers):
			kept = append(kept, line)
			follow = followLines
		case follow > 0 && follows(stripLevel(line)):
			kept = append(kept, line)
			follow--
		default:
			follow = 0
		}
		if len(kept) >= maxDiagnosticLines {
			break
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(output)
	}
	return strings.Join(kept, "\n")
}

func stripLevel(line string) string {
	for _, prefix := range []string{"[ERROR]", "[INFO]", "[WARNING]"} {
		line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
	}
	return line
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Package sanitize turns raw model output into Java source text.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	reasoningBlockRegex = regexp.MustCompile(`(?s)<(?:think|thinking|reasoning)>.*?</(?:think|thinking|reasoning)>`)
	// Only markup tag names models are known to emit; Java generics such as <T> survive.
	markupTagRegex = regexp.MustCompile(`</?(?:think|thinking|reasoning|answer|output|response|result|code|java)(?:\s[^<>]*)?/?>`)
	fenceRegex     = regexp.MustCompile("```[A-Za-z0-9_+-]*")
	packageRegex   = regexp.MustCompile(`package\s+[\w.]+\s*;`)
	publicClass    = regexp.MustCompile(`\bpublic\s+(?:(?:final|abstract)\s+)*class\s+\w+`)
	classDecl      = regexp.MustCompile(`\bclass\s+[A-Za-z_$][\w$]*`)
)

// Sanitize strips reasoning blocks, markup tags and code fences, cuts everything before
// the first package declaration, and cuts everything after the last balanced top-level
// public class, or the last top-level class when none is public. Tags and fences inside
// string, char and text block literals are kept. When no class body balances, the text is repaired by closing open string
// literals at line end and appending missing closing braces.
func Sanitize(raw string) string {
	s := stripMarkup(raw)
	if loc := packageRegex.FindStringIndex(s); loc != nil {
		s = s[loc[0]:]
	}
	if end := lastBalancedClassEnd(s); end >= 0 {
		s = s[:end]
	} else {
		s = repair(s)
	}
	return strings.TrimSpace(s)
}

// Usable reports whether sanitized output declares a class and can be compiled.
func Usable(code string) bool {
	return classDecl.MatchString(code)
}

// stripMarkup repeats until stable so removals cannot splice a new tag or fence together.
func stripMarkup(s string) string {
	for {
		next := reasoningBlockRegex.ReplaceAllString(s, "")
		next = stripOutsideLiterals(next)
		if next == s {
			return s
		}
		s = next
	}
}

// stripOutsideLiterals removes markup tags and fences from the text between literals.
func stripOutsideLiterals(s string) string {
	var b strings.Builder
	var l lexer
	start, literal := 0, false
	flush := func(end int) {
		seg := s[start:end]
		if !literal {
			seg = markupTagRegex.ReplaceAllString(seg, "")
			seg = fenceRegex.ReplaceAllString(seg, "")
		}
		b.WriteString(seg)
		start = end
	}
	for i := 0; i < len(s); {
		i += l.next(s, i)
		if l.inLiteral() != literal {
			flush(i)
			literal = l.inLiteral()
		}
	}
	flush(len(s))
	return b.String()
}

// lastBalancedClassEnd returns the offset just past the closing brace of the last public
// class declared at top level whose body balances, or -1. Without any public class, any
// top-level class counts.
func lastBalancedClassEnd(text string) int {
	starts := publicClass.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		starts = classDecl.FindAllStringIndex(text, -1)
	}
	if len(starts) == 0 {
		return -1
	}
	var l lexer
	end, k, active := -1, 0, false
	for i := 0; i < len(text); {
		for k < len(starts) && starts[k][0] < i {
			k++
		}
		if k < len(starts) && starts[k][0] == i && l.state == stateCode && l.depth == 0 {
			active = true
		}
		before, c := l.depth, text[i]
		i += l.next(text, i)
		if active && c == '}' && before == 1 && l.depth == 0 {
			end = i
			active = false
		}
	}
	return end
}

// repair balances delimiters. The output is balanced, not necessarily valid Java.
func repair(text string) string {
	var b strings.Builder
	var l lexer
	for i := 0; i < len(text); {
		if text[i] == '\n' {
			b.WriteString(l.closeLiteral())
		}
		step := l.next(text, i)
		b.WriteString(text[i : i+step])
		i += step
	}
	b.WriteString(l.closeLiteral())
	switch l.state {
	case stateTextBlock:
		b.WriteString(`"""`)
	case stateBlockComment:
		b.WriteString("*/")
	}
	for ; l.depth > 0; l.depth-- {
		b.WriteString("\n}")
	}
	return b.String()
}

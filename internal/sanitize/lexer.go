package sanitize

import "strings"

type lexState int

const (
	stateCode lexState = iota
	stateString
	stateChar
	stateTextBlock
	stateLineComment
	stateBlockComment
)

// lexer tracks literal, comment and brace state over Java text one token at a time.
type lexer struct {
	state   lexState
	depth   int
	escaped bool
}

// next consumes the token starting at text[i] and returns its length in bytes.
func (l *lexer) next(text string, i int) int {
	c := text[i]
	switch l.state {
	case stateCode:
		switch {
		case strings.HasPrefix(text[i:], `"""`):
			l.state = stateTextBlock
			return 3
		case strings.HasPrefix(text[i:], "//"):
			l.state = stateLineComment
			return 2
		case strings.HasPrefix(text[i:], "/*"):
			l.state = stateBlockComment
			return 2
		case c == '"':
			l.state = stateString
		case c == '\'':
			l.state = stateChar
		case c == '{':
			l.depth++
		case c == '}':
			if l.depth > 0 {
				l.depth--
			}
		}
	case stateString, stateChar:
		switch {
		case c == '\n':
			// literals cannot span lines
			l.state = stateCode
			l.escaped = false
		case l.escaped:
			l.escaped = false
		case c == '\\':
			l.escaped = true
		case c == '"' && l.state == stateString, c == '\'' && l.state == stateChar:
			l.state = stateCode
		}
	case stateTextBlock:
		switch {
		case l.escaped:
			l.escaped = false
		case c == '\\':
			l.escaped = true
		case strings.HasPrefix(text[i:], `"""`):
			l.state = stateCode
			return 3
		}
	case stateLineComment:
		if c == '\n' {
			l.state = stateCode
		}
	case stateBlockComment:
		if strings.HasPrefix(text[i:], "*/") {
			l.state = stateCode
			return 2
		}
	}
	return 1
}

func (l *lexer) inLiteral() bool {
	return l.state == stateString || l.state == stateChar || l.state == stateTextBlock
}

// closeLiteral returns the quote that terminates an open string or char literal.
func (l *lexer) closeLiteral() string {
	switch l.state {
	case stateString:
		return `"`
	case stateChar:
		return "'"
	}
	return ""
}

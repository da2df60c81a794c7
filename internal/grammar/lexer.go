package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokHeader
	tokWord
	tokRuleRef
	tokEquals
	tokSemicolon
	tokPipe
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokStar
	tokPlus
	tokWeight
	tokTag
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokHeader:
		return "header"
	case tokWord:
		return "token"
	case tokRuleRef:
		return "rule reference"
	case tokEquals:
		return "'='"
	case tokSemicolon:
		return "';'"
	case tokPipe:
		return "'|'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokStar:
		return "'*'"
	case tokPlus:
		return "'+'"
	case tokWeight:
		return "weight"
	case tokTag:
		return "tag"
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

type token struct {
	kind   tokenKind
	text   string
	weight float64
	quoted bool
	line   int
	column int
}

// lexer splits grammar text into tokens, dropping comments and whitespace.
type lexer struct {
	src    string
	pos    int
	line   int
	column int
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, column: 1}
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) errorf(line, column int, format string, args ...any) error {
	return &SyntaxError{Line: line, Column: column, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) advance() byte {
	ch := l.src[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

// skipSpaceAndComments consumes whitespace plus // and /* */ comments.
func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.advance()
		case ch == '/' && l.peekByte(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekByte(1) == '*':
			line, column := l.line, l.column
			l.advance()
			l.advance()
			closed := false
			for l.pos < len(l.src) {
				if l.src[l.pos] == '*' && l.peekByte(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return l.errorf(line, column, "unterminated block comment")
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}

	line, column := l.line, l.column
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: line, column: column}, nil
	}

	simple := func(kind tokenKind) (token, error) {
		text := string(l.advance())
		return token{kind: kind, text: text, line: line, column: column}, nil
	}

	switch ch := l.src[l.pos]; ch {
	case '#':
		start := l.pos
		for l.pos < len(l.src) && l.src[l.pos] != ';' {
			l.advance()
		}
		if l.pos >= len(l.src) {
			return token{}, l.errorf(line, column, "header is missing terminating ';'")
		}
		text := l.src[start:l.pos]
		l.advance()
		return token{kind: tokHeader, text: text, line: line, column: column}, nil
	case '=':
		return simple(tokEquals)
	case ';':
		return simple(tokSemicolon)
	case '|':
		return simple(tokPipe)
	case '(':
		return simple(tokLParen)
	case ')':
		return simple(tokRParen)
	case '[':
		return simple(tokLBracket)
	case ']':
		return simple(tokRBracket)
	case '*':
		return simple(tokStar)
	case '+':
		return simple(tokPlus)
	case '<':
		return l.lexDelimited(tokRuleRef, '<', '>', line, column)
	case '{':
		return l.lexDelimited(tokTag, '{', '}', line, column)
	case '/':
		tok, err := l.lexDelimited(tokWeight, '/', '/', line, column)
		if err != nil {
			return token{}, err
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(tok.text), 64)
		if err != nil || weight < 0 {
			return token{}, l.errorf(line, column, "invalid weight %q", tok.text)
		}
		tok.weight = weight
		return tok, nil
	case '"':
		return l.lexQuoted(line, column)
	case '>', '}':
		return token{}, l.errorf(line, column, "unexpected %q", string(ch))
	default:
		start := l.pos
		for l.pos < len(l.src) && isWordByte(l.src[l.pos]) {
			l.advance()
		}
		return token{kind: tokWord, text: l.src[start:l.pos], line: line, column: column}, nil
	}
}

func (l *lexer) lexDelimited(kind tokenKind, open, closing byte, line, column int) (token, error) {
	l.advance()
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != closing {
		if l.src[l.pos] == '\n' && kind != tokTag {
			return token{}, l.errorf(line, column, "unterminated %s", kind)
		}
		l.advance()
	}
	if l.pos >= len(l.src) {
		return token{}, l.errorf(line, column, "unterminated %s", kind)
	}
	text := l.src[start:l.pos]
	l.advance()
	if kind == tokRuleRef && strings.TrimSpace(text) == "" {
		return token{}, l.errorf(line, column, "empty rule name %c%c", open, closing)
	}
	return token{kind: kind, text: strings.TrimSpace(text), line: line, column: column}, nil
}

func (l *lexer) lexQuoted(line, column int) (token, error) {
	l.advance()
	var b strings.Builder
	for l.pos < len(l.src) {
		ch := l.advance()
		switch ch {
		case '\\':
			if l.pos >= len(l.src) {
				return token{}, l.errorf(line, column, "unterminated quoted token")
			}
			b.WriteByte(l.advance())
		case '"':
			text := strings.TrimSpace(b.String())
			if text == "" {
				return token{}, l.errorf(line, column, "empty quoted token")
			}
			return token{kind: tokWord, text: text, quoted: true, line: line, column: column}, nil
		default:
			b.WriteByte(ch)
		}
	}
	return token{}, l.errorf(line, column, "unterminated quoted token")
}

func isWordByte(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', ';', '=', '|', '*', '+', '<', '>', '(', ')', '[', ']', '{', '}', '/', '"', '#':
		return false
	default:
		return true
	}
}

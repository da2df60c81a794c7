package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// normalizeJSONC blanks comments and drops trailing commas so the result is
// plain JSON with the same line and column layout.
func normalizeJSONC(content string) (string, error) {
	stripped, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(stripped), nil
}

// jsoncScanner tracks whether the cursor sits inside a string literal.
type jsoncScanner struct {
	inString bool
	escape   bool
}

// literal consumes ch and reports whether it belonged to a string literal.
func (s *jsoncScanner) literal(ch byte) bool {
	if s.inString {
		switch {
		case s.escape:
			s.escape = false
		case ch == '\\':
			s.escape = true
		case ch == '"':
			s.inString = false
		}
		return true
	}
	if ch == '"' {
		s.inString = true
		return true
	}
	return false
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	var scan jsoncScanner
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if scan.literal(ch) {
			out.WriteByte(ch)
			continue
		}
		if ch != '/' || i+1 >= len(content) {
			out.WriteByte(ch)
			continue
		}

		switch content[i+1] {
		case '/':
			end := strings.IndexAny(content[i:], "\r\n")
			if end < 0 {
				end = len(content) - i
			}
			out.WriteString(strings.Repeat(" ", end))
			i += end - 1
		case '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return "", fmt.Errorf("unterminated block comment in JSONC")
			}
			blankPreservingLines(&out, content[i:i+2+end+2])
			i += 2 + end + 1
		default:
			out.WriteByte(ch)
		}
	}
	return out.String(), nil
}

func blankPreservingLines(out *strings.Builder, comment string) {
	for i := 0; i < len(comment); i++ {
		switch comment[i] {
		case '\n', '\r', '\t':
			out.WriteByte(comment[i])
		default:
			out.WriteByte(' ')
		}
	}
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	var scan jsoncScanner
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if scan.literal(ch) {
			out.WriteByte(ch)
			continue
		}
		if ch == ',' {
			rest := strings.TrimLeft(content[i+1:], " \t\r\n")
			if strings.HasPrefix(rest, "}") || strings.HasPrefix(rest, "]") {
				out.WriteByte(' ')
				continue
			}
		}
		out.WriteByte(ch)
	}
	return out.String()
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := min(int(offset), len(content))

	prefix := content[:max(limit-1, 0)]
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}

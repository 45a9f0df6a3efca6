package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrNoJSON        = errors.New("no json object in answer")
	ErrMalformedJSON = errors.New("malformed json object in answer")
)

// ExtractJSON returns the first syntactically valid JSON object embedded in
// ans. Code fences and surrounding prose are ignored.
func ExtractJSON(ans string) (string, error) {
	start := strings.IndexByte(ans, '{')
	if start < 0 {
		return "", ErrNoJSON
	}
	for start >= 0 {
		if end := matchBrace(ans, start); end > start {
			candidate := ans[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(ans[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrMalformedJSON
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Truncate cuts s to at most limit runes. A non-positive limit disables the cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Excerpt is Truncate with a marker, for diagnostics embedded in reasons.
// The result never exceeds limit runes.
func Excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 3 || utf8.RuneCountInString(s) <= limit {
		return Truncate(s, limit)
	}
	return Truncate(s, limit-3) + "..."
}

var binaryKeys = map[string]struct{}{
	"imagebase64": {},
	"image":       {},
	"screenshot":  {},
	"base64":      {},
	"pdfbase64":   {},
}

// Scrub returns a copy of v with image payloads replaced by a placeholder.
func Scrub(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok && isBinaryField(k, s) {
				out[k] = fmt.Sprintf("<omitted %d bytes>", len(s))
				continue
			}
			out[k] = Scrub(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Scrub(val)
		}
		return out
	case string:
		if strings.HasPrefix(t, "data:image/") {
			return fmt.Sprintf("<omitted %d bytes>", len(t))
		}
		return t
	default:
		return v
	}
}

func isBinaryField(key, val string) bool {
	if val == "" {
		return false
	}
	if _, ok := binaryKeys[strings.ToLower(key)]; ok {
		return true
	}
	return strings.HasPrefix(val, "data:image/")
}

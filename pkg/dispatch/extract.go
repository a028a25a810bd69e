package dispatch

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNoJSON means the text contains no JSON object.
	ErrNoJSON = errors.New("no json object in reply")
	// ErrUnbalanced means an object was opened but never closed.
	ErrUnbalanced = errors.New("unbalanced json object in reply")
)

// ExtractJSON returns the first balanced, valid JSON object embedded in
// text. Braces inside string literals are ignored. Balanced blocks that
// are not valid JSON (prose such as "{like this}") are skipped. A brace
// that never closes because a stray quote in prose opened a string is
// skipped too: scanning resumes at the first brace that fell inside that
// string. Braces nested in a truncated object are never returned on their
// own, so a reply cut off mid-object yields ErrUnbalanced.
func ExtractJSON(text string) (string, error) {
	unbalanced := false
	pos := 0
	for pos < len(text) {
		i := strings.IndexByte(text[pos:], '{')
		if i < 0 {
			break
		}
		start := pos + i
		end, ok, next := matchBrace(text, start)
		if !ok {
			unbalanced = true
			if next < 0 {
				break
			}
			pos = next
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
		pos = end + 1
	}
	if unbalanced {
		return "", ErrUnbalanced
	}
	return "", ErrNoJSON
}

// matchBrace returns the index of the brace closing the one at start.
// When there is none, next is the first '{' after start that the scan
// took to be inside a string literal, or -1.
func matchBrace(text string, start int) (end int, ok bool, next int) {
	next = -1
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			case c == '{' && next < 0:
				next = i
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
				return i, true, -1
			}
		}
	}
	return 0, false, next
}

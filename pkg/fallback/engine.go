// Package fallback synthesizes results locally when no provider can serve a
// request. Synthesis performs no I/O and never fails: every well-formed
// request yields a complete output. For equal input the output is
// identical apart from the ID field.
package fallback

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pario-ai/backstop/pkg/models"
)

// Engine builds outputs from keyword tables.
type Engine struct {
	newID func() string
}

// New creates an Engine that stamps outputs with random UUIDs.
func New() *Engine {
	return &Engine{newID: uuid.NewString}
}

// WithIDFunc returns a copy of e that uses fn for output IDs.
func (e *Engine) WithIDFunc(fn func() string) *Engine {
	return &Engine{newID: fn}
}

// Synthesize builds an output for req. Unknown kinds produce a caption.
func (e *Engine) Synthesize(req models.Request) models.Output {
	id := e.newID()
	switch req.Kind {
	case models.KindRecipe:
		return buildRecipe(id, req)
	case models.KindPalette:
		return buildPalette(id, req)
	default:
		return buildCaption(id, req)
	}
}

// keywords returns the lower-cased, trimmed, non-empty items followed by
// the words of the prompt.
func keywords(req models.Request) []string {
	var out []string
	for _, it := range req.Items {
		if w := strings.ToLower(strings.TrimSpace(it)); w != "" {
			out = append(out, w)
		}
	}
	for _, w := range strings.Fields(strings.ToLower(req.Prompt)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if i > 0 && w == "and" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// containsAny reports whether word contains any of the given fragments.
func containsAny(word string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(word, f) {
			return true
		}
	}
	return false
}

package models

import "time"

// Kind identifies which consumer feature a request belongs to.
type Kind string

const (
	KindRecipe  Kind = "recipe"
	KindPalette Kind = "palette"
	KindCaption Kind = "caption"
)

// Kinds lists every supported request kind.
var Kinds = []Kind{KindRecipe, KindPalette, KindCaption}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Request is the payload a front-end hands to the orchestrator.
//
// Items carries the list-like inputs (ingredients, mood keywords, photo
// tags) and Attributes the scalar ones (cuisine, difficulty, tone).
// RequestID and Timestamp are volatile and never affect the fingerprint.
type Request struct {
	Kind       Kind              `json:"kind" yaml:"kind" validate:"required"`
	Items      []string          `json:"items,omitempty" yaml:"items" validate:"max=50,dive,max=200"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes" validate:"max=20"`
	Prompt     string            `json:"prompt,omitempty" yaml:"prompt" validate:"max=4000"`
	RequestID  string            `json:"request_id,omitempty" yaml:"request_id"`
	Timestamp  time.Time         `json:"timestamp,omitempty" yaml:"timestamp"`
}

// Attr returns an attribute value or def when unset or blank.
func (r Request) Attr(name, def string) string {
	if v, ok := r.Attributes[name]; ok && v != "" {
		return v
	}
	return def
}

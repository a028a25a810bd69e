package models

// Output is the canonical result payload. It is a closed set: Recipe,
// Palette and Caption.
type Output interface {
	OutputKind() Kind
	// Identifier returns the randomized id field.
	Identifier() string
	// Clone returns a copy that shares no slices with the receiver.
	Clone() Output
}

// Recipe is the canonical recipe-generator result.
type Recipe struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	CookingTime  string   `json:"cookingTime"`
	Difficulty   string   `json:"difficulty"`
	Servings     int      `json:"servings"`
	Cuisine      string   `json:"cuisine,omitempty"`
}

func (Recipe) OutputKind() Kind     { return KindRecipe }
func (r Recipe) Identifier() string { return r.ID }

func (r Recipe) Clone() Output {
	r.Ingredients = clone(r.Ingredients)
	r.Instructions = clone(r.Instructions)
	return r
}

// Color is one swatch of a palette.
type Color struct {
	Role string `json:"role"`
	Hex  string `json:"hex"`
}

// Palette is the canonical colour-palette result.
type Palette struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Mood     string  `json:"mood"`
	Colors   []Color `json:"colors"`
	Contrast float64 `json:"contrast"`
}

func (Palette) OutputKind() Kind     { return KindPalette }
func (p Palette) Identifier() string { return p.ID }

func (p Palette) Clone() Output {
	p.Colors = clone(p.Colors)
	return p
}

// Caption is the canonical caption-generator result.
type Caption struct {
	ID       string   `json:"id"`
	Text     string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
	Tone     string   `json:"tone"`
}

func (Caption) OutputKind() Kind     { return KindCaption }
func (c Caption) Identifier() string { return c.ID }

func (c Caption) Clone() Output {
	c.Hashtags = clone(c.Hashtags)
	return c
}

func clone[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}

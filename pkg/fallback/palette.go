package fallback

import (
	"hash/fnv"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/pario-ai/backstop/pkg/models"
)

// MinContrast is the WCAG AA ratio guaranteed between text and background.
const MinContrast = 4.5

type moodTone struct {
	hue  float64
	dark bool
}

var moodHues = map[string]moodTone{
	"calm":       {hue: 200},
	"serene":     {hue: 190},
	"peaceful":   {hue: 180},
	"ocean":      {hue: 205},
	"sea":        {hue: 205},
	"sky":        {hue: 210},
	"nature":     {hue: 120},
	"forest":     {hue: 140, dark: true},
	"fresh":      {hue: 95},
	"spring":     {hue: 90},
	"energetic":  {hue: 25},
	"vibrant":    {hue: 330},
	"warm":       {hue: 30},
	"autumn":     {hue: 28},
	"sunset":     {hue: 15},
	"sunny":      {hue: 50},
	"happy":      {hue: 48},
	"romantic":   {hue: 340},
	"love":       {hue: 350},
	"luxury":     {hue: 45, dark: true},
	"elegant":    {hue: 270, dark: true},
	"mysterious": {hue: 265, dark: true},
	"night":      {hue: 235, dark: true},
	"moody":      {hue: 250, dark: true},
	"winter":     {hue: 215},
	"cool":       {hue: 185},
	"earthy":     {hue: 35},
	"minimal":    {hue: 220},
}

const defaultMood = "balanced"

// pickMood returns the first keyword with a known hue. Without one, the
// hue is derived from an FNV-1a hash of all keywords.
func pickMood(words []string) (string, moodTone) {
	for _, w := range words {
		if tone, ok := moodHues[w]; ok {
			return w, tone
		}
	}
	if len(words) == 0 {
		return defaultMood, moodTone{hue: 210}
	}
	h := fnv.New32a()
	h.Write([]byte(strings.Join(words, " ")))
	return words[0], moodTone{hue: float64(h.Sum32() % 360)}
}

func buildPalette(id string, req models.Request) models.Palette {
	mood, tone := pickMood(keywords(req))
	if m := strings.ToLower(strings.TrimSpace(req.Attr("mood", ""))); m != "" {
		if t, ok := moodHues[m]; ok {
			mood, tone = m, t
		}
	}
	h := tone.hue

	var bg, surface, text colorful.Color
	if tone.dark {
		bg = quantize(colorful.Hsl(h, 0.30, 0.10))
		surface = quantize(colorful.Hsl(h, 0.25, 0.18))
		text = colorful.Hsl(h, 0.20, 0.80)
	} else {
		bg = quantize(colorful.Hsl(h, 0.25, 0.96))
		surface = quantize(colorful.Hsl(h, 0.30, 0.88))
		text = colorful.Hsl(h, 0.30, 0.25)
	}
	primary := quantize(colorful.Hsl(h, 0.65, 0.45))
	accent := quantize(colorful.Hsl(math.Mod(h+150, 360), 0.70, 0.55))
	text = ensureContrast(text, bg, tone.dark)

	return models.Palette{
		ID:   id,
		Name: titleCase(mood) + " " + hueName(h),
		Mood: mood,
		Colors: []models.Color{
			{Role: "background", Hex: bg.Hex()},
			{Role: "surface", Hex: surface.Hex()},
			{Role: "primary", Hex: primary.Hex()},
			{Role: "accent", Hex: accent.Hex()},
			{Role: "text", Hex: text.Hex()},
		},
		Contrast: math.Floor(contrastRatio(text, bg)*100) / 100,
	}
}

// ensureContrast moves the text lightness away from the background until
// the ratio reaches MinContrast.
func ensureContrast(text, bg colorful.Color, darkBg bool) colorful.Color {
	h, s, l := text.Hsl()
	step := -0.05
	if darkBg {
		step = 0.05
	}
	c := quantize(text)
	for contrastRatio(c, bg) < MinContrast {
		l += step
		if l <= 0 || l >= 1 {
			if darkBg {
				return quantize(colorful.Color{R: 1, G: 1, B: 1})
			}
			return quantize(colorful.Color{})
		}
		c = quantize(colorful.Hsl(h, s, l))
	}
	return c
}

// ContrastRatio returns the WCAG contrast ratio between two hex colours.
// Unparseable input yields 1.
func ContrastRatio(hexA, hexB string) float64 {
	a, err := colorful.Hex(hexA)
	if err != nil {
		return 1
	}
	b, err := colorful.Hex(hexB)
	if err != nil {
		return 1
	}
	return contrastRatio(a, b)
}

func contrastRatio(a, b colorful.Color) float64 {
	la, lb := luminance(a), luminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

func luminance(c colorful.Color) float64 {
	r, g, b := c.Clamped().LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// quantize rounds c to the nearest 8-bit colour so that reported contrast
// matches the emitted hex values.
func quantize(c colorful.Color) colorful.Color {
	q, err := colorful.Hex(c.Clamped().Hex())
	if err != nil {
		return c
	}
	return q
}

func hueName(h float64) string {
	switch {
	case h < 15 || h >= 345:
		return "Reds"
	case h < 45:
		return "Oranges"
	case h < 70:
		return "Golds"
	case h < 160:
		return "Greens"
	case h < 195:
		return "Teals"
	case h < 250:
		return "Blues"
	case h < 290:
		return "Violets"
	default:
		return "Pinks"
	}
}

package dispatch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/pario-ai/backstop/pkg/fallback"
	"github.com/pario-ai/backstop/pkg/models"
)

// ErrMissingField is returned when a reply lacks a required field.
var ErrMissingField = errors.New("required field missing")

// Schema defaults for optional fields.
const (
	DefaultCookingTime = "30 minutes"
	DefaultDifficulty  = "easy"
	DefaultServings    = 2
	DefaultTone        = "casual"
)

var paletteRoles = []string{"background", "surface", "primary", "accent", "text"}

var (
	hexPattern     = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
)

// Repair decodes raw JSON into the canonical output for req.Kind. Missing
// optional fields get defaults; missing required fields are an error.
func Repair(req models.Request, raw string, newID func() string) (models.Output, error) {
	obj := gjson.Parse(raw)
	if !obj.IsObject() {
		return nil, fmt.Errorf("reply is not an object: %w", ErrNoJSON)
	}

	id := strings.TrimSpace(obj.Get("id").String())
	if id == "" {
		id = newID()
	}

	switch req.Kind {
	case models.KindRecipe:
		return repairRecipe(req, obj, id)
	case models.KindPalette:
		return repairPalette(req, obj, id)
	default:
		return repairCaption(req, obj, id)
	}
}

func repairRecipe(req models.Request, obj gjson.Result, id string) (models.Output, error) {
	r := models.Recipe{ID: id}

	r.Title = strings.TrimSpace(first(obj, "title", "name").String())
	if r.Title == "" {
		return nil, fmt.Errorf("recipe title: %w", ErrMissingField)
	}
	r.Instructions = stringList(first(obj, "instructions", "steps", "directions"))
	if len(r.Instructions) == 0 {
		return nil, fmt.Errorf("recipe instructions: %w", ErrMissingField)
	}

	r.Ingredients = stringList(obj.Get("ingredients"))
	if len(r.Ingredients) == 0 {
		r.Ingredients = append([]string(nil), req.Items...)
	}

	ct := first(obj, "cookingTime", "cooking_time", "time")
	switch {
	case ct.Type == gjson.Number && ct.Int() > 0:
		r.CookingTime = fmt.Sprintf("%d minutes", ct.Int())
	case strings.TrimSpace(ct.String()) != "":
		r.CookingTime = strings.TrimSpace(ct.String())
	default:
		r.CookingTime = DefaultCookingTime
	}

	r.Difficulty = difficulty(obj.Get("difficulty").String())
	if r.Difficulty == "" {
		r.Difficulty = difficulty(req.Attr("difficulty", ""))
	}
	if r.Difficulty == "" {
		r.Difficulty = DefaultDifficulty
	}

	r.Servings = DefaultServings
	if s := obj.Get("servings"); s.Exists() {
		n := int(s.Int())
		if s.Type == gjson.String {
			// "4 people"
			if f := strings.Fields(s.String()); len(f) > 0 {
				n, _ = strconv.Atoi(f[0])
			}
		}
		if n > 0 {
			r.Servings = n
		}
	}

	r.Cuisine = strings.TrimSpace(obj.Get("cuisine").String())
	if r.Cuisine == "" {
		r.Cuisine = req.Attr("cuisine", "")
	}
	return r, nil
}

func repairPalette(req models.Request, obj gjson.Result, id string) (models.Output, error) {
	p := models.Palette{ID: id}

	var colors []models.Color
	used := make(map[string]bool)
	first(obj, "colors", "palette").ForEach(func(_, c gjson.Result) bool {
		var role, hex string
		if c.IsObject() {
			role = strings.ToLower(strings.TrimSpace(c.Get("role").String()))
			hex = first(c, "hex", "color", "value").String()
		} else {
			hex = c.String()
		}
		m := hexPattern.FindStringSubmatch(strings.TrimSpace(hex))
		if m == nil {
			return true
		}
		colors = append(colors, models.Color{Role: role, Hex: "#" + strings.ToLower(m[1])})
		if role != "" {
			used[role] = true
		}
		return true
	})
	if len(colors) == 0 {
		return nil, fmt.Errorf("palette colors: %w", ErrMissingField)
	}

	// Unlabelled colours take the unused roles in order.
	next := 0
	for i := range colors {
		if colors[i].Role != "" {
			continue
		}
		for next < len(paletteRoles) && used[paletteRoles[next]] {
			next++
		}
		if next < len(paletteRoles) {
			colors[i].Role = paletteRoles[next]
			used[paletteRoles[next]] = true
		} else {
			colors[i].Role = fmt.Sprintf("extra-%d", i+1)
		}
	}
	p.Colors = colors

	p.Mood = strings.ToLower(strings.TrimSpace(obj.Get("mood").String()))
	if p.Mood == "" {
		p.Mood = strings.ToLower(req.Attr("mood", firstItem(req, "custom")))
	}
	p.Name = strings.TrimSpace(obj.Get("name").String())
	if p.Name == "" {
		p.Name = capitalize(p.Mood) + " Palette"
	}

	var bg, text string
	for _, c := range colors {
		switch c.Role {
		case "background":
			bg = c.Hex
		case "text":
			text = c.Hex
		}
	}
	if bg != "" && text != "" {
		p.Contrast = float64(int(fallback.ContrastRatio(text, bg)*100)) / 100
	}
	return p, nil
}

func repairCaption(req models.Request, obj gjson.Result, id string) (models.Output, error) {
	c := models.Caption{ID: id}

	c.Text = strings.TrimSpace(first(obj, "caption", "text").String())
	if c.Text == "" {
		return nil, fmt.Errorf("caption text: %w", ErrMissingField)
	}

	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tag = strings.ReplaceAll(tag, " ", "")
		if key := strings.ToLower(tag); !seen[key] {
			seen[key] = true
			c.Hashtags = append(c.Hashtags, tag)
		}
	}
	for _, tag := range stringList(obj.Get("hashtags")) {
		add(tag)
	}
	if len(c.Hashtags) == 0 {
		for _, tag := range hashtagPattern.FindAllString(c.Text, -1) {
			add(tag)
		}
	}
	if c.Hashtags == nil {
		c.Hashtags = []string{}
	}

	c.Tone = strings.ToLower(strings.TrimSpace(obj.Get("tone").String()))
	if c.Tone == "" {
		c.Tone = strings.ToLower(req.Attr("tone", DefaultTone))
	}
	return c, nil
}

// first returns the first of the given fields present in obj.
func first(obj gjson.Result, fields ...string) gjson.Result {
	for _, f := range fields {
		if r := obj.Get(f); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// stringList accepts an array of strings, an array of objects with a
// name-like field, or a newline-separated string.
func stringList(r gjson.Result) []string {
	var out []string
	if r.IsArray() {
		r.ForEach(func(_, v gjson.Result) bool {
			s := v.String()
			if v.IsObject() {
				s = first(v, "name", "text", "step", "item").String()
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			return true
		})
		return out
	}
	if r.Type == gjson.String {
		for _, line := range strings.Split(r.String(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

func difficulty(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "easy", "medium", "hard":
		return s
	default:
		return ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func firstItem(req models.Request, def string) string {
	for _, it := range req.Items {
		if it = strings.TrimSpace(it); it != "" {
			return it
		}
	}
	return def
}

package fallback

import (
	"strings"
	"unicode"

	"github.com/pario-ai/backstop/pkg/models"
)

type captionTheme struct {
	tone     string
	match    []string
	template string // %s is replaced by the subject
}

var captionThemes = []captionTheme{
	{tone: "adventurous", match: []string{"travel", "trip", "mountain", "hike", "beach", "road", "adventure"}, template: "Chasing horizons with %s."},
	{tone: "cozy", match: []string{"coffee", "tea", "book", "rain", "blanket", "home"}, template: "Slow moments and %s."},
	{tone: "celebratory", match: []string{"party", "birthday", "wedding", "celebrate", "friends", "cake"}, template: "Here's to %s and the people who make it special."},
	{tone: "foodie", match: []string{"food", "dinner", "lunch", "brunch", "pizza", "recipe", "chicken", "rice"}, template: "Good food, good mood: %s."},
	{tone: "energetic", match: []string{"gym", "workout", "run", "fitness", "training", "sport"}, template: "No shortcuts, just %s."},
	{tone: "serene", match: []string{"sunset", "sunrise", "ocean", "nature", "forest", "calm", "garden"}, template: "Finding peace in %s."},
}

var defaultCaptionTheme = captionTheme{tone: "casual", template: "Just a little bit of %s today."}

const maxHashtags = 5

func buildCaption(id string, req models.Request) models.Caption {
	words := keywords(req)
	theme := defaultCaptionTheme
	if t := req.Attr("tone", ""); t != "" {
		theme = themeForTone(strings.ToLower(t))
	} else {
	outer:
		for _, w := range words {
			for _, th := range captionThemes {
				if containsAny(w, th.match) {
					theme = th
					break outer
				}
			}
		}
	}

	subject := "the everyday"
	if len(req.Items) > 0 {
		var subjects []string
		for _, it := range req.Items {
			if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
				subjects = append(subjects, it)
			}
			if len(subjects) == 2 {
				break
			}
		}
		if len(subjects) > 0 {
			subject = joinList(subjects)
		}
	} else if p := strings.TrimSpace(req.Prompt); p != "" {
		subject = strings.ToLower(strings.TrimRight(p, ".!? "))
	}

	return models.Caption{
		ID:       id,
		Text:     strings.Replace(theme.template, "%s", subject, 1),
		Hashtags: hashtags(req, theme.tone),
		Tone:     theme.tone,
	}
}

func themeForTone(tone string) captionTheme {
	for _, th := range captionThemes {
		if th.tone == tone {
			return th
		}
	}
	return captionTheme{tone: tone, template: defaultCaptionTheme.template}
}

// hashtags builds up to maxHashtags tags from the items, then the tone.
func hashtags(req models.Request, tone string) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(s string) {
		tag := hashtag(s)
		if tag == "" || seen[tag] || len(tags) >= maxHashtags {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	for _, it := range req.Items {
		add(it)
	}
	add(tone)
	return tags
}

func hashtag(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}

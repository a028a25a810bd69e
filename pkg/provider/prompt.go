package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pario-ai/backstop/pkg/models"
)

// BuildPrompt renders req as an instruction asking for a single JSON object
// of the canonical shape for its kind.
func BuildPrompt(req models.Request) string {
	var sb strings.Builder

	switch req.Kind {
	case models.KindRecipe:
		sb.WriteString("Create a recipe using these ingredients: ")
		sb.WriteString(strings.Join(req.Items, ", "))
		sb.WriteString(".\n")
	case models.KindPalette:
		sb.WriteString("Design a five-colour palette")
		if len(req.Items) > 0 {
			sb.WriteString(" for the mood: ")
			sb.WriteString(strings.Join(req.Items, ", "))
		}
		sb.WriteString(".\n")
	case models.KindCaption:
		sb.WriteString("Write a short social media caption")
		if len(req.Items) > 0 {
			sb.WriteString(" about: ")
			sb.WriteString(strings.Join(req.Items, ", "))
		}
		sb.WriteString(".\n")
	}

	if len(req.Attributes) > 0 {
		keys := make([]string, 0, len(req.Attributes))
		for k := range req.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Preferences:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, req.Attributes[k]))
		}
	}

	if p := strings.TrimSpace(req.Prompt); p != "" {
		sb.WriteString("Additional context: ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond with only a JSON object with these fields:\n")
	sb.WriteString(schemaHint(req.Kind))
	return sb.String()
}

func schemaHint(kind models.Kind) string {
	switch kind {
	case models.KindRecipe:
		return `{"title": string, "ingredients": [string], "instructions": [string], "cookingTime": string, "difficulty": "easy"|"medium"|"hard", "servings": number, "cuisine": string}`
	case models.KindPalette:
		return `{"name": string, "mood": string, "colors": [{"role": "background"|"surface"|"primary"|"accent"|"text", "hex": "#rrggbb"}]}`
	default:
		return `{"caption": string, "hashtags": [string], "tone": string}`
	}
}

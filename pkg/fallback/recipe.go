package fallback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pario-ai/backstop/pkg/models"
)

type recipeTemplate struct {
	name        string
	match       []string
	cookingTime string
	// steps are formatted with the joined ingredient list.
	steps []string
}

// recipeTemplates are scored in order; the first highest score wins.
var recipeTemplates = []recipeTemplate{
	{
		name:        "Stir-Fry",
		match:       []string{"chicken", "beef", "pork", "tofu", "shrimp", "broccoli", "pepper", "soy", "ginger"},
		cookingTime: "20 minutes",
		steps: []string{
			"Cut %s into bite-sized pieces.",
			"Heat a little oil in a wok or large pan over high heat.",
			"Stir-fry the ingredients, starting with the ones that take longest to cook.",
			"Season with soy sauce, garlic and a pinch of pepper.",
			"Serve hot, straight from the pan.",
		},
	},
	{
		name:        "Bowl",
		match:       []string{"rice", "quinoa", "bean", "lentil", "chickpea", "avocado", "egg"},
		cookingTime: "25 minutes",
		steps: []string{
			"Cook the grains according to the package instructions.",
			"Prepare %s while the grains simmer.",
			"Divide the grains between bowls.",
			"Arrange the toppings over the grains.",
			"Finish with a drizzle of sauce and serve.",
		},
	},
	{
		name:        "Pasta",
		match:       []string{"pasta", "spaghetti", "penne", "noodle", "macaroni", "basil", "parmesan"},
		cookingTime: "25 minutes",
		steps: []string{
			"Bring a large pot of salted water to the boil and cook the pasta until al dente.",
			"Meanwhile, sauté %s in olive oil.",
			"Reserve a cup of pasta water, then drain.",
			"Toss the pasta with the sauce, loosening with pasta water as needed.",
			"Serve with grated cheese.",
		},
	},
	{
		name:        "Salad",
		match:       []string{"lettuce", "spinach", "kale", "cucumber", "tomato", "arugula", "feta"},
		cookingTime: "10 minutes",
		steps: []string{
			"Wash and dry %s.",
			"Chop everything into even pieces.",
			"Whisk olive oil, lemon juice, salt and pepper into a dressing.",
			"Toss the salad with the dressing just before serving.",
		},
	},
	{
		name:        "Soup",
		match:       []string{"potato", "carrot", "onion", "celery", "broth", "stock", "squash", "leek"},
		cookingTime: "40 minutes",
		steps: []string{
			"Dice %s.",
			"Soften the aromatics in a pot with a little oil.",
			"Add the remaining ingredients and cover with stock.",
			"Simmer for 25 minutes until everything is tender.",
			"Season to taste and serve warm.",
		},
	},
	{
		name:        "Bake",
		match:       []string{"flour", "butter", "sugar", "apple", "banana", "chocolate", "oat", "cheese"},
		cookingTime: "45 minutes",
		steps: []string{
			"Preheat the oven to 180°C (350°F).",
			"Combine %s in a bowl.",
			"Transfer to a greased baking dish.",
			"Bake for 30 to 35 minutes until golden.",
			"Let cool for 10 minutes before serving.",
		},
	},
}

var skilletTemplate = recipeTemplate{
	name:        "Skillet",
	cookingTime: "30 minutes",
	steps: []string{
		"Prepare %s by washing and chopping as needed.",
		"Heat oil in a large skillet over medium heat.",
		"Cook the ingredients until tender, stirring occasionally.",
		"Season with salt, pepper and your favourite herbs.",
		"Serve warm.",
	},
}

func pickRecipeTemplate(words []string) recipeTemplate {
	best, bestScore := skilletTemplate, 0
	for _, tpl := range recipeTemplates {
		score := 0
		for _, w := range words {
			if containsAny(w, tpl.match) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = tpl, score
		}
	}
	return best
}

func buildRecipe(id string, req models.Request) models.Recipe {
	var ingredients []string
	seen := make(map[string]bool)
	for _, it := range req.Items {
		it = strings.TrimSpace(it)
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		ingredients = append(ingredients, it)
	}
	if len(ingredients) == 0 {
		ingredients = []string{"seasonal vegetables"}
	}

	tpl := pickRecipeTemplate(keywords(req))
	cuisine := req.Attr("cuisine", "")

	title := titleCase(strings.ToLower(joinTitle(ingredients)) + " " + tpl.name)
	if cuisine != "" {
		title = titleCase(cuisine) + " " + title
	}

	list := joinList(ingredients)
	steps := make([]string, len(tpl.steps))
	for i, s := range tpl.steps {
		if strings.Contains(s, "%s") {
			s = fmt.Sprintf(s, list)
		}
		steps[i] = fmt.Sprintf("%d. %s", i+1, s)
	}

	servings := 2
	if n, err := strconv.Atoi(req.Attr("servings", "")); err == nil && n > 0 && n <= 50 {
		servings = n
	}

	return models.Recipe{
		ID:           id,
		Title:        title,
		Ingredients:  ingredients,
		Instructions: steps,
		CookingTime:  tpl.cookingTime,
		Difficulty:   normalizeDifficulty(req.Attr("difficulty", "easy")),
		Servings:     servings,
		Cuisine:      cuisine,
	}
}

func normalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "easy", "medium", "hard":
		return d
	default:
		return "easy"
	}
}

// joinTitle names a dish after at most two ingredients.
func joinTitle(items []string) string {
	if len(items) == 1 {
		return items[0]
	}
	return items[0] + " and " + items[1]
}

func joinList(items []string) string {
	switch len(items) {
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

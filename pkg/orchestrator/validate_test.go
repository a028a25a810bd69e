package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pario-ai/backstop/pkg/models"
)

func TestValidateRequest(t *testing.T) {
	ok := []models.Request{
		{Kind: models.KindRecipe, Items: []string{"egg"}},
		{Kind: models.KindPalette, Prompt: "a rainy afternoon"},
		{Kind: models.KindPalette, Items: []string{"calm"}},
		{Kind: models.KindCaption, Items: []string{"dog"}},
		{Kind: models.KindCaption, Prompt: "new haircut", Attributes: map[string]string{"tone": "witty"}},
	}
	for _, req := range ok {
		assert.NoError(t, ValidateRequest(req), "%+v", req)
	}

	err := ValidateRequest(models.Request{Kind: models.KindRecipe, Items: []string{""}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "ingredient")
}

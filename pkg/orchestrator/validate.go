package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pario-ai/backstop/pkg/models"
)

var validate = validator.New()

// ErrInvalidRequest is wrapped by every validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// ValidateRequest checks field limits and the per-kind minimum input.
func ValidateRequest(req models.Request) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidRequest, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	hasItems := false
	for _, it := range req.Items {
		if strings.TrimSpace(it) != "" {
			hasItems = true
			break
		}
	}
	hasPrompt := strings.TrimSpace(req.Prompt) != ""

	switch req.Kind {
	case models.KindRecipe:
		if !hasItems {
			return fmt.Errorf("%w: recipe needs at least one ingredient", ErrInvalidRequest)
		}
	case models.KindPalette, models.KindCaption:
		if !hasItems && !hasPrompt {
			return fmt.Errorf("%w: %s needs items or a prompt", ErrInvalidRequest, req.Kind)
		}
	}
	return nil
}

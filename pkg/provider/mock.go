package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pario-ai/backstop/pkg/fallback"
	"github.com/pario-ai/backstop/pkg/models"
)

// Mock answers deterministically without any network access. The reply
// wraps a JSON object in prose, the way chat models tend to.
type Mock struct {
	engine *fallback.Engine
}

// NewMock creates a Mock caller.
func NewMock() *Mock {
	return &Mock{engine: fallback.New().WithIDFunc(func() string { return "" })}
}

func (m *Mock) Complete(ctx context.Context, req models.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Provider: "mock", Err: err}
	}
	data, err := json.Marshal(m.engine.Synthesize(req))
	if err != nil {
		return "", fmt.Errorf("mock encode: %w", err)
	}
	return "Sure! Here is what you asked for:\n```json\n" + string(data) + "\n```", nil
}

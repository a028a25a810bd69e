// Package provider talks to remote inference services. Each response shape
// has its own Caller; all of them return the raw text of the reply and
// leave parsing to the dispatcher.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/models"
)

// Caller sends one request to a provider.
type Caller interface {
	Complete(ctx context.Context, req models.Request) (string, error)
}

// Error wraps a provider failure with the HTTP status, when known.
type Error struct {
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var (
	// ErrEmptyReply is returned when a provider answers without any text.
	ErrEmptyReply = errors.New("empty reply")
	// ErrUnknownShape is returned by New for an unsupported response shape.
	ErrUnknownShape = errors.New("unknown response shape")
)

const defaultMaxTokens = 1024

var defaultModels = map[string]string{
	config.ShapeChat:     "gpt-4o-mini",
	config.ShapeMessages: "claude-3-5-haiku-latest",
	config.ShapeGemini:   "gemini-2.0-flash",
}

type options struct {
	httpClient *http.Client
}

// Option configures caller construction.
type Option func(*options)

// WithHTTPClient sets the HTTP client used by every shape.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the Caller for cfg. apiKey may be empty for the mock shape.
func New(cfg config.ProviderConfig, apiKey string, opts ...Option) (Caller, error) {
	o := options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.ResponseShape]
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	switch cfg.ResponseShape {
	case config.ShapeChat:
		return newChatCaller(cfg, apiKey, o), nil
	case config.ShapeMessages:
		return newMessagesCaller(cfg, apiKey, o), nil
	case config.ShapeGemini:
		return newGeminiCaller(cfg, apiKey, o)
	case config.ShapeCompletion:
		return newCompletionCaller(cfg, apiKey, o)
	case config.ShapeMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, cfg.ResponseShape)
	}
}

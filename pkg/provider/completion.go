package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/models"
)

const defaultTextPath = "choices.0.text"

// maxReplyBytes caps how much of a reply body is read.
const maxReplyBytes = 1 << 20

// completionCaller posts a plain prompt and picks the reply text out of
// the JSON body at a configurable path.
type completionCaller struct {
	id         string
	cfg        config.ProviderConfig
	apiKey     string
	httpClient *http.Client
}

type completionRequest struct {
	Model       string  `json:"model,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

func newCompletionCaller(cfg config.ProviderConfig, apiKey string, o options) (*completionCaller, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("provider %s: completion shape requires an endpoint", cfg.ID)
	}
	if cfg.TextPath == "" {
		cfg.TextPath = defaultTextPath
	}
	return &completionCaller{id: cfg.ID, cfg: cfg, apiKey: apiKey, httpClient: o.httpClient}, nil
}

func (c *completionCaller) Complete(ctx context.Context, req models.Request) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Prompt:      BuildPrompt(req),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: c.id, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: c.id, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", &Error{Provider: c.id, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &Error{Provider: c.id, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	text := gjson.GetBytes(data, c.cfg.TextPath)
	if !text.Exists() || strings.TrimSpace(text.String()) == "" {
		return "", &Error{Provider: c.id, Status: resp.StatusCode, Err: fmt.Errorf("nothing at %q: %w", c.cfg.TextPath, ErrEmptyReply)}
	}
	return text.String(), nil
}

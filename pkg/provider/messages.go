package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/models"
)

// messagesCaller speaks the Anthropic Messages API.
type messagesCaller struct {
	id     string
	cfg    config.ProviderConfig
	client anthropic.Client
}

func newMessagesCaller(cfg config.ProviderConfig, apiKey string, o options) *messagesCaller {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
		anthropicoption.WithHTTPClient(o.httpClient),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.Endpoint))
	}
	return &messagesCaller{id: cfg.ID, cfg: cfg, client: anthropic.NewClient(opts...)}
}

func (c *messagesCaller) Complete(ctx context.Context, req models.Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(c.cfg.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &Error{Provider: c.id, Status: apiErr.StatusCode, Err: err}
		}
		return "", &Error{Provider: c.id, Err: err}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", &Error{Provider: c.id, Err: ErrEmptyReply}
	}
	return sb.String(), nil
}

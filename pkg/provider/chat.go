package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/models"
)

// chatCaller speaks the OpenAI-compatible Chat Completions API.
type chatCaller struct {
	id     string
	cfg    config.ProviderConfig
	client openai.Client
}

func newChatCaller(cfg config.ProviderConfig, apiKey string, o options) *chatCaller {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(o.httpClient),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &chatCaller{id: cfg.ID, cfg: cfg, client: openai.NewClient(opts...)}
}

func (c *chatCaller) Complete(ctx context.Context, req models.Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(BuildPrompt(req)),
		},
		MaxTokens: openai.Int(int64(c.cfg.MaxTokens)),
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = openai.Float(c.cfg.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &Error{Provider: c.id, Status: apiErr.StatusCode, Err: err}
		}
		return "", &Error{Provider: c.id, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Provider: c.id, Err: fmt.Errorf("no choices: %w", ErrEmptyReply)}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &Error{Provider: c.id, Err: ErrEmptyReply}
	}
	return content, nil
}

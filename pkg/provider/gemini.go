package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/models"
)

// geminiCaller speaks the Gemini generateContent API.
type geminiCaller struct {
	id     string
	cfg    config.ProviderConfig
	client *genai.Client
}

func newGeminiCaller(cfg config.ProviderConfig, apiKey string, o options) (*geminiCaller, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client for %s: %w", cfg.ID, err)
	}
	return &geminiCaller{id: cfg.ID, cfg: cfg, client: client}, nil
}

func (c *geminiCaller) Complete(ctx context.Context, req models.Request) (string, error) {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if c.cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(c.cfg.Temperature))
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(BuildPrompt(req)), gc)
	if err != nil {
		return "", &Error{Provider: c.id, Status: geminiStatus(err), Err: err}
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &Error{Provider: c.id, Err: fmt.Errorf("no candidates: %w", ErrEmptyReply)}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", &Error{Provider: c.id, Err: ErrEmptyReply}
	}
	return sb.String(), nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

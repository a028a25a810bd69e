package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pario-ai/backstop/pkg/models"
	"github.com/pario-ai/backstop/pkg/orchestrator"
)

type requestArgs struct {
	Kind       models.Kind       `json:"kind"`
	Items      []string          `json:"items"`
	Attributes map[string]string `json:"attributes"`
	Prompt     string            `json:"prompt"`
	NoCache    bool              `json:"no_cache"`
	TTL        string            `json:"ttl"`
}

type quotaArgs struct {
	ProviderID string `json:"provider_id"`
}

type toolHandler func(ctx context.Context, orch Orchestrator, args json.RawMessage) ToolResult

var handlers = map[string]toolHandler{
	"backstop_request": handleRequest,
	"backstop_quota":   handleQuota,
	"backstop_mode":    handleMode,
}

var tools = []Tool{
	{
		Name:        "backstop_request",
		Description: "Generate a recipe, colour palette or social caption. Always returns a result; falls back to a local generator when no provider can serve.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"kind"},
			"properties": map[string]any{
				"kind": map[string]any{
					"type": "string",
					"enum": []string{string(models.KindRecipe), string(models.KindPalette), string(models.KindCaption)},
				},
				"items": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Ingredients, mood keywords or photo tags",
				},
				"attributes": map[string]any{
					"type":                 "object",
					"additionalProperties": map[string]any{"type": "string"},
					"description":          "Scalar preferences such as cuisine, servings or tone",
				},
				"prompt":   map[string]any{"type": "string"},
				"no_cache": map[string]any{"type": "boolean"},
				"ttl": map[string]any{
					"type":        "string",
					"description": "Cache lifetime as a Go duration, e.g. 10m",
				},
			},
		},
	},
	{
		Name:        "backstop_quota",
		Description: "Show daily and monthly quota usage per provider.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"provider_id": map[string]any{
					"type":        "string",
					"description": "Limit output to one provider (optional)",
				},
			},
		},
	},
	{
		Name:        "backstop_mode",
		Description: "Show the current availability mode and cache statistics.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func handleRequest(ctx context.Context, orch Orchestrator, raw json.RawMessage) ToolResult {
	var args requestArgs
	if err := decodeArgs(raw, &args); err != nil {
		return textResult(err.Error(), true)
	}

	opts := orchestrator.Options{NoCache: args.NoCache}
	if args.TTL != "" {
		ttl, err := time.ParseDuration(args.TTL)
		if err != nil {
			return textResult(fmt.Sprintf("invalid ttl: %v", err), true)
		}
		opts.TTL = ttl
	}

	res := orch.Request(ctx, models.Request{
		Kind:       args.Kind,
		Items:      args.Items,
		Attributes: args.Attributes,
		Prompt:     args.Prompt,
		Timestamp:  time.Now(),
	}, opts)

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return textResult(fmt.Sprintf("encode result: %v", err), true)
	}
	return textResult(string(data), !res.Success)
}

func handleQuota(ctx context.Context, orch Orchestrator, raw json.RawMessage) ToolResult {
	var args quotaArgs
	if err := decodeArgs(raw, &args); err != nil {
		return textResult(err.Error(), true)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tTIER\tDAILY\tDAILY LEFT\tMONTHLY\tMONTHLY LEFT")
	found := false
	for _, p := range orch.Providers() {
		if args.ProviderID != "" && p.ID != args.ProviderID {
			continue
		}
		found = true
		usage, err := orch.Usage(ctx, p.ID)
		if err != nil {
			return textResult(err.Error(), true)
		}
		rem, err := orch.RemainingQuota(ctx, p.ID)
		if err != nil {
			return textResult(err.Error(), true)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
			p.ID, p.EffectiveTier(), usage.DailyCount, formatLeft(rem.Daily),
			usage.MonthlyCount, formatLeft(rem.Monthly))
	}
	if !found {
		if args.ProviderID != "" {
			return textResult(fmt.Sprintf("unknown provider: %s", args.ProviderID), true)
		}
		return textResult("No providers configured.", false)
	}
	_ = w.Flush()
	return textResult(b.String(), false)
}

func handleMode(ctx context.Context, orch Orchestrator, _ json.RawMessage) ToolResult {
	st := orch.CacheStats()
	return textResult(fmt.Sprintf("Mode: %s\nCache: %d entries, %d hits, %d misses, %.1f%% hit rate\n",
		orch.CurrentMode(ctx), st.Entries, st.Hits, st.Misses, st.HitRate*100), false)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func formatLeft(n int) string {
	if n < 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

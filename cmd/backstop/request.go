package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/backstop/pkg/models"
	"github.com/pario-ai/backstop/pkg/orchestrator"
)

func newRequestCmd(configPath *string) *cobra.Command {
	var (
		items   []string
		attrs   []string
		prompt  string
		noCache bool
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:       "request <recipe|palette|caption>",
		Short:     "Run one request through the orchestrator and print the result",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.KindRecipe), string(models.KindPalette), string(models.KindCaption)},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.Request{
				Kind:      models.Kind(args[0]),
				Items:     items,
				Prompt:    prompt,
				Timestamp: time.Now(),
			}
			if len(attrs) > 0 {
				req.Attributes = make(map[string]string, len(attrs))
				for _, kv := range attrs {
					k, v, ok := strings.Cut(kv, "=")
					if !ok {
						return fmt.Errorf("attribute %q: expected name=value", kv)
					}
					req.Attributes[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
			}

			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.orch.Request(cmd.Context(), req, orchestrator.Options{NoCache: noCache, TTL: ttl})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("request rejected: %s", res.Detail)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, "list input (ingredient, mood keyword, photo tag); repeatable")
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "scalar input as name=value; repeatable")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "free-form context")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not cache the result")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "cache lifetime for this result")
	return cmd
}

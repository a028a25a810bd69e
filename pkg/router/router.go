package router

import (
	"fmt"
	"sort"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/models"
)

// Route is one provider to attempt.
type Route struct {
	Provider config.ProviderConfig
}

// Router resolves a request kind to an ordered provider chain.
type Router struct {
	providers []config.ProviderConfig
}

// New creates a Router from the given configuration. Providers are
// ordered by ascending priority; equal priorities keep config order.
func New(cfg *config.Config) *Router {
	providers := make([]config.ProviderConfig, len(cfg.Providers))
	copy(providers, cfg.Providers)
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority < providers[j].Priority
	})
	return &Router{providers: providers}
}

// Resolve returns the providers that serve kind, in attempt order.
func (r *Router) Resolve(kind models.Kind) ([]Route, error) {
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	var routes []Route
	for _, p := range r.providers {
		if p.Serves(string(kind)) {
			routes = append(routes, Route{Provider: p})
		}
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no provider serves %q", kind)
	}
	return routes, nil
}

// Providers returns every provider in priority order.
func (r *Router) Providers() []config.ProviderConfig {
	out := make([]config.ProviderConfig, len(r.providers))
	copy(out, r.providers)
	return out
}

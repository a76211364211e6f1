// Package generation routes generate() to either the local LLM engine or
// the external API client, chosen once at server construction. It holds
// no state of its own.
package generation

import "context"

// LocalEngine is the subset of llmengine.Engine the router depends on.
type LocalEngine interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (string, int, error)
}

// APIClient is the subset of apiclient.Client the router depends on.
type APIClient interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (string, int, error)
}

// Router dispatches generate() to exactly one configured backend.
type Router struct {
	local LocalEngine
	api   APIClient
}

// NewLocal returns a Router backed by the local LLM engine.
func NewLocal(engine LocalEngine) *Router {
	return &Router{local: engine}
}

// NewAPI returns a Router backed by an external API client.
func NewAPI(client APIClient) *Router {
	return &Router{api: client}
}

// Generate delegates to whichever backend this Router was constructed
// with. Errors from either backend surface unchanged.
func (r *Router) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (string, int, error) {
	if r.local != nil {
		return r.local.Generate(ctx, prompt, maxTokens, temperature, stop)
	}
	return r.api.Generate(ctx, prompt, maxTokens, temperature, stop)
}

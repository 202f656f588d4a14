package workflow

import (
	"context"
	"sync"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	adkmodel "conductor/internal/adapters/adk/model"
	"conductor/pkg/errors"
)

// ModelResolver turns the model identifier of an LLM agent configuration
// into a runtime model handle.
type ModelResolver interface {
	Resolve(ctx context.Context, cfg *AgentConfig) (model.LLM, error)
}

// BasicResolver produces declarative model handles that carry metadata but
// serve no inference. Used in tests and offline compilation.
type BasicResolver struct {
	Provider string
}

// Resolve implements ModelResolver.
func (r BasicResolver) Resolve(_ context.Context, cfg *AgentConfig) (model.LLM, error) {
	provider := r.Provider
	if provider == "" {
		provider = "gemini"
	}
	return adkmodel.BasicModel{
		ID:         cfg.Model,
		ProviderID: provider,
		Tokens:     cfg.MaxOutputTokens,
	}, nil
}

// GeminiResolver creates live Gemini model clients, one per model ID.
// Handles are cached so workflows sharing a model share the client.
type GeminiResolver struct {
	apiKey string

	mu    sync.Mutex
	cache map[string]model.LLM
}

// NewGeminiResolver builds a resolver backed by the Gemini API.
func NewGeminiResolver(apiKey string) (*GeminiResolver, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "gemini api key is not configured")
	}
	return &GeminiResolver{
		apiKey: apiKey,
		cache:  map[string]model.LLM{},
	}, nil
}

// Resolve implements ModelResolver.
func (r *GeminiResolver) Resolve(ctx context.Context, cfg *AgentConfig) (model.LLM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.cache[cfg.Model]; ok {
		return m, nil
	}

	m, err := gemini.NewModel(ctx, cfg.Model, &genai.ClientConfig{APIKey: r.apiKey})
	if err != nil {
		return nil, errors.Wrapf(err, "create gemini model %s", cfg.Model)
	}

	r.cache[cfg.Model] = m
	return m, nil
}

// Package model provides declarative model handles for the ADK runtime.
package model

import (
	"context"
	"iter"

	adkmodel "google.golang.org/adk/model"

	"conductor/pkg/errors"
)

// BasicModel is a lightweight LLM handle carrying static metadata. It
// satisfies the runtime's model interface but performs no inference, so
// workflows can be compiled and inspected without provider credentials.
type BasicModel struct {
	ID         string
	ProviderID string
	Tokens     int
}

// Name returns the model identifier.
func (m BasicModel) Name() string { return m.ID }

// Provider returns the provider identifier.
func (m BasicModel) Provider() string { return m.ProviderID }

// MaxTokens returns the max output token limit.
func (m BasicModel) MaxTokens() int { return m.Tokens }

// GenerateContent implements the runtime model interface. A declarative
// handle serves no inference; invoking it reports the missing provider.
func (m BasicModel) GenerateContent(ctx context.Context, req *adkmodel.LLMRequest, stream bool) iter.Seq2[*adkmodel.LLMResponse, error] {
	return func(yield func(*adkmodel.LLMResponse, error) bool) {
		yield(nil, errors.Wrapf(errors.ErrUnavailable,
			"model %s: provider %s is not configured for inference", m.ID, m.ProviderID))
	}
}

var _ adkmodel.LLM = BasicModel{}

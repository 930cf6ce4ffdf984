// Package provider builds model.Model instances from explicit per-run
// execution options. Credentials are never cached between calls.
package provider

import (
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/model/anthropic"
	"github.com/hupe1980/insightmesh/model/openai"
)

// Provider identifiers accepted in ExecutionOptions.Provider.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
)

var (
	// ErrNoAPIKey is returned when options carry no API key.
	ErrNoAPIKey = errors.New("no provider api key configured")
	// ErrUnknownProvider is returned for unsupported provider identifiers.
	ErrUnknownProvider = errors.New("unknown model provider")
)

// Factory creates a model for one call. Backends and the synthesizer accept
// a Factory so tests can substitute mocks.
type Factory func(opts core.ExecutionOptions) (model.Model, error)

// New is the default Factory backed by the official provider SDKs. An empty
// provider defaults to OpenAI.
func New(opts core.ExecutionOptions) (model.Model, error) {
	if !opts.HasAPIKey() {
		return nil, ErrNoAPIKey
	}
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", OpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = opts.APIKey
			if opts.Model != "" {
				o.Model = opts.Model
			}
			if opts.Temperature > 0 {
				o.Temperature = opts.Temperature
			}
		}), nil
	case Anthropic, "claude":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = opts.APIKey
			if opts.Model != "" {
				o.Model = anthropicsdk.Model(opts.Model)
			}
			if opts.Temperature > 0 {
				o.Temperature = opts.Temperature
			}
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
	}
}

// Static returns a Factory that always yields m, still honoring the API key
// requirement so tier selection behaves as in production.
func Static(m model.Model) Factory {
	return func(opts core.ExecutionOptions) (model.Model, error) {
		if !opts.HasAPIKey() {
			return nil, ErrNoAPIKey
		}
		return m, nil
	}
}

package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/metrics"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/model/provider"
)

// DirectTier calls the configured AI provider in-process.
type DirectTier struct {
	factory        provider.Factory
	SampleRows     int
	MaxPromptBytes int
	Logger         logging.Logger
	Metrics        *metrics.Collector
}

// NewDirectTier builds a direct tier around factory.
func NewDirectTier(factory provider.Factory, optFns ...func(d *DirectTier)) *DirectTier {
	d := &DirectTier{
		factory:        factory,
		SampleRows:     DefaultSampleRows,
		MaxPromptBytes: DefaultMaxPromptKB * 1024,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(d)
	}
	if d.factory == nil {
		d.factory = provider.New
	}
	d.Logger = logging.OrNoOp(d.Logger)
	return d
}

// Method implements Tier.
func (t *DirectTier) Method() core.ExecutionMethod { return core.MethodDirect }

// Execute implements Tier.
func (t *DirectTier) Execute(ctx context.Context, req core.ExecutionRequest, logf core.LogFunc) (*core.ExecutionResult, error) {
	if !req.Options.HasAPIKey() {
		return nil, unavailable(core.MethodDirect, "no API key configured", nil)
	}
	m, err := t.factory(req.Options)
	if err != nil {
		return nil, unavailable(core.MethodDirect, "provider unavailable", err)
	}
	if err := req.Limiter.Acquire(); err != nil {
		return nil, unavailable(core.MethodDirect, "model call budget exhausted", err)
	}

	system, err := SystemPrompt(req.Agent)
	if err != nil {
		return nil, unavailable(core.MethodDirect, "prompt rendering failed", err)
	}
	prompt := BuildContext(req.DataSource, t.SampleRows, t.MaxPromptBytes)

	info := m.Info()
	logf.Log(fmt.Sprintf("Calling %s (%s) for %s analysis", info.Provider, info.Name, req.Agent.Kind))

	var temperature *float64
	if req.Options.Temperature > 0 {
		v := req.Options.Temperature
		temperature = &v
	}

	start := time.Now()
	resp, err := model.Complete(ctx, m, model.Request{Instructions: system, Prompt: prompt, Temperature: temperature})
	elapsed := time.Since(start)
	t.Metrics.ModelCall(info.Provider, "analysis", err == nil, elapsed)
	logging.LogModelCall(t.Logger, info.Provider, info.Name, elapsed, err == nil, err)
	if err != nil {
		return nil, unavailable(core.MethodDirect, "model call failed", err)
	}

	parsed := ParseResponse(resp.Text)
	switch parsed.(type) {
	case Structured:
		logf.Log("Received structured analysis from AI provider")
	case Raw:
		logf.Log("AI provider returned unstructured text, extracting tables")
	}
	return Normalize(parsed, req.DataSource, core.MethodDirect), nil
}

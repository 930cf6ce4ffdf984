// Package synthesis merges collaborator results into one result for a
// composite agent. An AI-assisted merge is preferred; a deterministic
// mechanical merge is always available as the fallback.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/insightmesh/backend"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/util"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/metrics"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/model/provider"
)

// Contribution is one collaborator's finished run.
type Contribution struct {
	Agent  *core.Agent
	Result *core.ExecutionResult
}

// ErrEmptySynthesis is returned when the model produced no summary.
var ErrEmptySynthesis = errors.New("model returned an empty synthesis")

const instructions = `You are a senior analyst who writes the final report for a team of specialist agents.
Combine their findings into one coherent, non-repetitive narrative in markdown.
Resolve contradictions explicitly and keep every number you cite traceable to a contributor.
Respond with a single JSON object and nothing else:
{"summary": "markdown", "insights": ["..."], "visualizationRecommendations": ["..."]}`

const promptTemplate = `Dataset: {{.DataSource}}
{{range .Parts}}
### {{.Name}} ({{.Kind}})
Insights: {{join "; " .Insights}}
Statistics: {{.Statistics}}
Visualizations: {{join ", " .Titles}}
{{end}}`

type promptPart struct {
	Name       string
	Kind       core.AgentKind
	Insights   []string
	Statistics string
	Titles     []string
}

type aiPayload struct {
	Summary         string          `json:"summary"`
	Insights        backend.Strings `json:"insights"`
	Recommendations backend.Strings `json:"visualizationRecommendations"`
}

// Options configures a Synthesizer.
type Options struct {
	ModelFactory provider.Factory
	Logger       logging.Logger
	Metrics      *metrics.Collector
}

// Synthesizer merges contributions. It never fails: AI errors fall through
// to the mechanical merge and are recorded on the result.
type Synthesizer struct {
	factory provider.Factory
	logger  logging.Logger
	metrics *metrics.Collector
}

// New creates a Synthesizer.
func New(optFns ...func(o *Options)) *Synthesizer {
	opts := Options{
		ModelFactory: provider.New,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Synthesizer{
		factory: opts.ModelFactory,
		logger:  logging.OrNoOp(opts.Logger),
		metrics: opts.Metrics,
	}
}

// Synthesize merges parts for the composite request req.
func (s *Synthesizer) Synthesize(ctx context.Context, req core.ExecutionRequest, parts []Contribution, logf core.LogFunc) *core.ExecutionResult {
	var synthErr error
	switch {
	case !wantsAI(req):
		logf.Log("Result synthesis disabled, merging collaborator results")
	case !req.Options.HasAPIKey():
		logf.Log("No API key configured, merging collaborator results mechanically")
	default:
		logf.Log(fmt.Sprintf("Synthesizing results from %d collaborators", len(parts)))
		res, err := s.synthesizeAI(ctx, req, parts)
		if err == nil {
			s.metrics.Synthesis(string(core.SynthesisAI))
			logf.Log("AI synthesis completed")
			return res
		}
		synthErr = &core.SynthesisError{Err: err}
		s.logger.Warn("AI synthesis failed, using mechanical merge", "agent_id", req.Agent.ID, "error", err)
		logf.Log(fmt.Sprintf("AI synthesis failed (%v), falling back to mechanical merge", err))
	}

	res := Merge(parts)
	if synthErr != nil {
		res.SynthesisError = synthErr.Error()
	}
	s.metrics.Synthesis(string(core.SynthesisMechanical))
	return res
}

func wantsAI(req core.ExecutionRequest) bool {
	if !req.Agent.SynthesizeResults() {
		return false
	}
	return req.Options.Synthesize == nil || *req.Options.Synthesize
}

func (s *Synthesizer) synthesizeAI(ctx context.Context, req core.ExecutionRequest, parts []Contribution) (*core.ExecutionResult, error) {
	if s.factory == nil {
		return nil, provider.ErrNoAPIKey
	}
	m, err := s.factory(req.Options)
	if err != nil {
		return nil, err
	}
	if err := req.Limiter.Acquire(); err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(req.DataSource, parts)
	if err != nil {
		return nil, err
	}

	info := m.Info()
	start := time.Now()
	resp, err := model.Complete(ctx, m, model.Request{Instructions: instructions, Prompt: prompt})
	elapsed := time.Since(start)
	s.metrics.ModelCall(info.Provider, "synthesis", err == nil, elapsed)
	logging.LogModelCall(s.logger, info.Provider, info.Name, elapsed, err == nil, err)
	if err != nil {
		return nil, err
	}

	var p aiPayload
	if err := util.DecodeLenient(resp.Text, &p); err != nil {
		return nil, fmt.Errorf("decode synthesis: %w", err)
	}
	summary := strings.TrimSpace(p.Summary)
	if summary == "" {
		return nil, ErrEmptySynthesis
	}
	if len(p.Recommendations) > 0 {
		summary += "\n\n### Visualization recommendations\n\n" + util.MustRenderTemplate(`{{bullets .}}`, []string(p.Recommendations))
	}

	insights := []string(p.Insights)
	if insights == nil {
		insights = []string{}
	}
	visualizations := []core.Visualization{}
	for _, part := range parts {
		visualizations = append(visualizations, part.Result.Visualizations...)
	}

	return &core.ExecutionResult{
		Success:           true,
		Summary:           summary,
		Insights:          insights,
		Visualizations:    visualizations,
		Statistics:        mergeStatistics(parts),
		Method:            core.MethodCollaborative,
		SynthesisStrategy: core.SynthesisAI,
		CompletedAt:       time.Now().UTC(),
	}, nil
}

// BuildPrompt renders the synthesis prompt: per collaborator its insights,
// serialized statistics and visualization titles.
func BuildPrompt(ds *core.DataSource, parts []Contribution) (string, error) {
	data := struct {
		DataSource string
		Parts      []promptPart
	}{}
	if ds != nil {
		data.DataSource = ds.Name
	}
	for _, part := range parts {
		st, err := json.Marshal(part.Result.Statistics)
		if err != nil {
			return "", fmt.Errorf("encode statistics of %s: %w", part.Agent.ID, err)
		}
		titles := make([]string, 0, len(part.Result.Visualizations))
		for _, v := range part.Result.Visualizations {
			titles = append(titles, v.Title)
		}
		data.Parts = append(data.Parts, promptPart{
			Name:       part.Agent.DisplayName(),
			Kind:       part.Agent.Kind,
			Insights:   part.Result.Insights,
			Statistics: string(st),
			Titles:     titles,
		})
	}
	return util.RenderTemplate(promptTemplate, data)
}

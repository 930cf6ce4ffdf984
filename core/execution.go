package core

import "time"

// ExecutionMethod records which tier or strategy produced a result.
type ExecutionMethod string

const (
	MethodRemote        ExecutionMethod = "remote"
	MethodDirect        ExecutionMethod = "direct"
	MethodMock          ExecutionMethod = "mock"
	MethodCollaborative ExecutionMethod = "collaborative"
)

// SynthesisStrategy records how collaborator results were merged.
type SynthesisStrategy string

const (
	SynthesisAI         SynthesisStrategy = "ai"
	SynthesisMechanical SynthesisStrategy = "mechanical"
)

// ExecutionOptions are the per-run knobs supplied by the caller. Provider
// credentials travel here explicitly; no package keeps ambient key state.
type ExecutionOptions struct {
	Provider      string        `json:"provider,omitempty"`
	APIKey        string        `json:"-"`
	Model         string        `json:"model,omitempty"`
	Temperature   float64       `json:"temperature,omitempty"`
	ExecutionMode ExecutionMode `json:"executionMode,omitempty"`
	Synthesize    *bool         `json:"synthesize,omitempty"`
}

// HasAPIKey reports whether the direct AI tier may be attempted.
func (o ExecutionOptions) HasAPIKey() bool { return o.APIKey != "" }

// ExecutionRequest pairs an agent with a data source. It is treated as
// immutable for the duration of a run.
type ExecutionRequest struct {
	Agent      *Agent
	DataSource *DataSource
	Options    ExecutionOptions
	// Limiter caps AI calls across a batch; nil is unlimited.
	Limiter *ModelLimiter
}

// Validate reports a ConfigurationError when agent or data source are missing.
func (r ExecutionRequest) Validate() error {
	if r.Agent == nil {
		return NewConfigurationError(ErrAgentRequired, "no agent supplied")
	}
	if err := r.Agent.Validate(); err != nil {
		return err
	}
	if r.DataSource == nil {
		return NewConfigurationError(ErrDataSourceRequired, "no data source supplied")
	}
	return r.DataSource.Validate()
}

// ColumnStats summarizes one numeric column.
type ColumnStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// ChartKind identifies a visualization type.
type ChartKind string

const (
	ChartBar     ChartKind = "bar"
	ChartLine    ChartKind = "line"
	ChartPie     ChartKind = "pie"
	ChartScatter ChartKind = "scatter"
	ChartArea    ChartKind = "area"
)

// Series is one plotted data key.
type Series struct {
	DataKey string `json:"dataKey"`
	Name    string `json:"name,omitempty"`
	Color   string `json:"color,omitempty"`
}

// VisualizationConfig holds display settings for a chart.
type VisualizationConfig struct {
	XKey   string   `json:"xKey,omitempty"`
	YKey   string   `json:"yKey,omitempty"`
	Series []Series `json:"series,omitempty"`
	Colors []string `json:"colors,omitempty"`
}

// Visualization is a chart definition produced by an agent.
type Visualization struct {
	Kind   ChartKind           `json:"type"`
	Title  string              `json:"title"`
	Rows   []Row               `json:"data"`
	Config VisualizationConfig `json:"config"`
}

// ExecutionResult is the canonical output of one run.
type ExecutionResult struct {
	Success        bool                   `json:"success"`
	Summary        string                 `json:"summary"`
	Insights       []string               `json:"insights"`
	Visualizations []Visualization        `json:"visualizations"`
	Statistics     map[string]ColumnStats `json:"statistics"`
	Method         ExecutionMethod        `json:"executionMethod"`
	Error          string                 `json:"error,omitempty"`

	// Set only on synthesized (composite) results.
	SynthesisStrategy SynthesisStrategy `json:"synthesisStrategy,omitempty"`
	SynthesisError    string            `json:"synthesisError,omitempty"`

	CompletedAt time.Time `json:"completedAt"`
}

// FailedResult builds an unsuccessful result carrying msg.
func FailedResult(method ExecutionMethod, msg string) *ExecutionResult {
	return &ExecutionResult{
		Success:     false,
		Method:      method,
		Error:       msg,
		Insights:    []string{},
		Statistics:  map[string]ColumnStats{},
		CompletedAt: time.Now().UTC(),
	}
}

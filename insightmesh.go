// Package insightmesh provides a high-level façade over engine.Engine for
// running analysis agents against tabular data. Most applications interact
// with this package by:
//  1. Creating an InsightMesh via New() or FromConfig()
//  2. Registering agents, directly or from a catalog file
//  3. Running agents synchronously (Run, InvokeSync) or streaming (Invoke)
//
// All defaults are safe for local development and testing: reports are kept
// in memory, the remote tier is disabled and pacing runs at real speed.
package insightmesh

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/insightmesh/backend"
	"github.com/hupe1980/insightmesh/catalog"
	"github.com/hupe1980/insightmesh/config"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/engine"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/metrics"
	"github.com/hupe1980/insightmesh/model/provider"
	"github.com/hupe1980/insightmesh/remote"
	"github.com/hupe1980/insightmesh/report"
	"github.com/hupe1980/insightmesh/report/sqlite"
	"github.com/hupe1980/insightmesh/synthesis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the InsightMesh instance.
type Options struct {
	// EngineConfig holds concurrency and model-call limits.
	EngineConfig engine.Config

	// Remote enables the remote execution tier when non-nil.
	Remote *remote.Client

	// ModelFactory builds provider models for the direct tier and AI
	// synthesis. Defaults to provider.New.
	ModelFactory provider.Factory

	// SampleRows caps the rows sent to the model.
	SampleRows int

	// PacingScale multiplies the stage and synthesis pacing. 0 disables it.
	PacingScale float64

	// ExecutionOptions are applied to every run that does not bring its own.
	ExecutionOptions core.ExecutionOptions

	// ReportStore defaults to an in-memory store.
	ReportStore core.ReportStore

	Callbacks *engine.CallbackManager
	Metrics   *metrics.Collector

	// Gatherer backs MetricsHandler. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// InsightMesh is the high-level façade around the engine.
type InsightMesh struct {
	opts   Options
	engine *engine.Engine
	closer func() error
}

// New creates a new InsightMesh with optional overrides.
func New(optFns ...func(o *Options)) *InsightMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		ModelFactory: provider.New,
		SampleRows:   backend.DefaultSampleRows,
		PacingScale:  1,
		ReportStore:  report.NewInMemoryStore(),
		Gatherer:     prometheus.DefaultGatherer,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Backend = backend.New(func(bo *backend.Options) {
			bo.Remote = opts.Remote
			bo.ModelFactory = opts.ModelFactory
			bo.SampleRows = opts.SampleRows
			bo.Logger = logger
			bo.Metrics = opts.Metrics
		})
		o.Synthesizer = synthesis.New(func(so *synthesis.Options) {
			so.ModelFactory = opts.ModelFactory
			so.Logger = logger
			so.Metrics = opts.Metrics
		})
		o.PacingScale = opts.PacingScale
		o.ReportStore = opts.ReportStore
		o.Callbacks = opts.Callbacks
		o.Logger = logger
		o.Metrics = opts.Metrics
	})

	return &InsightMesh{opts: opts, engine: e}
}

// FromConfig builds an InsightMesh from a loaded configuration. The caller
// must Close the returned instance to release the report store.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*InsightMesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store  core.ReportStore = report.NewInMemoryStore()
		closer func() error
	)
	if cfg.Storage.Driver == config.StorageSQLite {
		s, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open report store: %w", err)
		}
		store, closer = s, s.Close
	}

	var client *remote.Client
	if cfg.Remote.BaseURL != "" {
		c, err := remote.NewClient(func(rc *remote.Config) {
			rc.BaseURL = cfg.Remote.BaseURL
			rc.PollInterval = cfg.PollInterval()
			rc.MaxPollAttempts = cfg.Remote.MaxPollAttempts
			if t := cfg.RemoteTimeout(); t > 0 {
				rc.HTTPClient = &http.Client{Timeout: t}
			}
		})
		if err != nil {
			if closer != nil {
				_ = closer()
			}
			return nil, fmt.Errorf("remote client: %w", err)
		}
		client = c
	}

	// a private registry keeps repeated FromConfig calls from colliding
	var (
		collector *metrics.Collector
		registry  *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		collector = metrics.NewCollector(cfg.Metrics.Namespace, registry)
	}

	m := New(append([]func(o *Options){func(o *Options) {
		o.EngineConfig.MaxModelCalls = cfg.Limits.MaxModelCalls
		if cfg.Limits.MaxConcurrentRuns > 0 {
			o.EngineConfig.MaxConcurrentRuns = cfg.Limits.MaxConcurrentRuns
		}
		if cfg.Limits.SampleRows > 0 {
			o.SampleRows = cfg.Limits.SampleRows
		}
		o.Remote = client
		o.PacingScale = cfg.Pacing.Scale
		o.ExecutionOptions = cfg.ExecutionOptions()
		o.ReportStore = store
		if collector != nil {
			o.Metrics = collector
			o.Gatherer = registry
		}
		o.Logger = cfg.Logger().WithComponent("insightmesh")
	}}, optFns...)...)
	m.closer = closer
	return m, nil
}

// Engine exposes the underlying engine.
func (m *InsightMesh) Engine() *engine.Engine { return m.engine }

// RegisterAgent adds an agent to the engine registry.
func (m *InsightMesh) RegisterAgent(a *core.Agent) error { return m.engine.Register(a) }

// LoadCatalog registers every agent of the catalog file at path and returns
// the catalog for data source lookup.
func (m *InsightMesh) LoadCatalog(path string) (*catalog.Catalog, error) {
	c, err := catalog.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.RegisterAll(m.engine); err != nil {
		return nil, err
	}
	return c, nil
}

// Run executes a registered agent against ds with the default execution
// options.
func (m *InsightMesh) Run(ctx context.Context, agentID string, ds *core.DataSource, optFns ...func(o *engine.RunOptions)) (*core.ExecutionResult, error) {
	return m.engine.RunAgent(ctx, agentID, ds, m.opts.ExecutionOptions, optFns...)
}

// Invoke starts a registered agent asynchronously and streams its events.
func (m *InsightMesh) Invoke(ctx context.Context, agentID string, ds *core.DataSource, optFns ...func(o *engine.RunOptions)) (string, <-chan engine.Event, error) {
	agent, ok := m.engine.Agent(agentID)
	if !ok {
		return "", nil, core.NewConfigurationError(core.ErrUnknownAgent, agentID)
	}
	runID, events := m.engine.Invoke(ctx, core.ExecutionRequest{
		Agent:      agent,
		DataSource: ds,
		Options:    m.opts.ExecutionOptions,
	}, optFns...)
	return runID, events, nil
}

// InvokeSync is a synchronous helper that drains the event stream and
// returns the collected events together with the final result.
func (m *InsightMesh) InvokeSync(ctx context.Context, agentID string, ds *core.DataSource) (*core.ExecutionResult, []engine.Event, error) {
	_, eventsCh, err := m.Invoke(ctx, agentID, ds)
	if err != nil {
		return nil, nil, err
	}

	var events []engine.Event
	for ev := range eventsCh {
		if ev.Type == engine.EventResult {
			return ev.Result, events, ev.Err
		}
		events = append(events, ev)
	}
	return nil, events, ctx.Err()
}

// Reports returns the report store.
func (m *InsightMesh) Reports() core.ReportStore { return m.engine.Reports() }

// Metrics returns the collector, nil when metrics are disabled.
func (m *InsightMesh) Metrics() *metrics.Collector { return m.opts.Metrics }

// MetricsHandler serves the gathered metrics in the Prometheus exposition
// format.
func (m *InsightMesh) MetricsHandler() http.Handler {
	g := m.opts.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Close releases resources held by the report store.
func (m *InsightMesh) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// ShutdownTimeout bounds the wait for in-flight runs in Shutdown.
const ShutdownTimeout = 10 * time.Second

// Shutdown cancels in-flight streamed runs and closes the instance.
func (m *InsightMesh) Shutdown() error {
	for _, id := range m.engine.ActiveRuns() {
		m.engine.Cancel(id)
	}
	deadline := time.Now().Add(ShutdownTimeout)
	for len(m.engine.ActiveRuns()) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return m.Close()
}

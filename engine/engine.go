package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/backend"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/metrics"
	"github.com/hupe1980/insightmesh/orchestrator"
	"github.com/hupe1980/insightmesh/pipeline"
	"github.com/hupe1980/insightmesh/progress"
	"github.com/hupe1980/insightmesh/report"
	"github.com/hupe1980/insightmesh/synthesis"
	"golang.org/x/sync/semaphore"
)

// ErrAgentBusy is returned when an agent is started while already running.
var ErrAgentBusy = errors.New("agent is already running")

// Config defines tuning parameters for the Engine.
type Config struct {
	// MaxConcurrentRuns limits top-level runs executing at once. Zero
	// disables the limit.
	MaxConcurrentRuns int

	// MaxModelCalls caps AI calls per run, collaborators and synthesis
	// included. Zero is unlimited.
	MaxModelCalls int

	// EventBufferSize sets the channel buffer of Invoke streams.
	EventBufferSize int
}

// DefaultConfig provides the default configuration.
var DefaultConfig = Config{
	MaxConcurrentRuns: 10,
	MaxModelCalls:     0,
	EventBufferSize:   100,
}

// Resolver maps collaborator ids to agent records.
type Resolver interface {
	Resolve(ctx context.Context, ids []string) ([]*core.Agent, error)
}

// Options configures an Engine.
type Options struct {
	Config Config

	// Backend executes single agents. Defaults to a backend.Selector with
	// only the direct and mock tiers reachable.
	Backend pipeline.Executor
	// Synthesizer merges composite results.
	Synthesizer *synthesis.Synthesizer
	// Stages overrides the pacing schedule.
	Stages []pipeline.Stage
	// PacingScale multiplies stage and synthesis pacing; 0 disables it.
	PacingScale float64
	// ReportStore persists reports. Defaults to an in-memory store.
	ReportStore core.ReportStore
	// Resolver resolves collaborator ids. Defaults to the engine registry.
	Resolver  Resolver
	Callbacks *CallbackManager
	Logger    logging.Logger
	Metrics   *metrics.Collector
}

// Engine runs agents. All methods are safe for concurrent use.
type Engine struct {
	config      Config
	runner      *pipeline.Runner
	coordinator *orchestrator.Coordinator
	reports     core.ReportStore
	resolver    Resolver
	callbacks   *CallbackManager
	logger      logging.Logger
	metrics     *metrics.Collector
	sem         *semaphore.Weighted
	statuses    *StatusBoard

	agents map[string]*core.Agent
	mu     sync.RWMutex

	progress   map[string]*core.ExecutionProgress
	progressMu sync.RWMutex

	activeRuns map[string]context.CancelFunc
	runsMu     sync.Mutex
}

// New creates an Engine with defaults for every unset dependency.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:      DefaultConfig,
		PacingScale: 1,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	if opts.Backend == nil {
		opts.Backend = backend.New(func(o *backend.Options) {
			o.Logger = logger
			o.Metrics = opts.Metrics
		})
	}
	if opts.Synthesizer == nil {
		opts.Synthesizer = synthesis.New(func(o *synthesis.Options) {
			o.Logger = logger
			o.Metrics = opts.Metrics
		})
	}
	if opts.ReportStore == nil {
		opts.ReportStore = report.NewInMemoryStore()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Config.EventBufferSize <= 0 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}

	runner := pipeline.New(opts.Backend, func(o *pipeline.Options) {
		if opts.Stages != nil {
			o.Stages = opts.Stages
		}
		o.PacingScale = opts.PacingScale
		o.Logger = logger
	})

	e := &Engine{
		config:  opts.Config,
		runner:  runner,
		reports: opts.ReportStore,
		coordinator: orchestrator.New(runner, opts.Synthesizer, func(o *orchestrator.Options) {
			o.PacingScale = opts.PacingScale
			o.Logger = logger
		}),
		callbacks:  opts.Callbacks,
		logger:     logger,
		metrics:    opts.Metrics,
		statuses:   NewStatusBoard(),
		agents:     make(map[string]*core.Agent),
		progress:   make(map[string]*core.ExecutionProgress),
		activeRuns: make(map[string]context.CancelFunc),
	}
	if opts.Config.MaxConcurrentRuns > 0 {
		e.sem = semaphore.NewWeighted(int64(opts.Config.MaxConcurrentRuns))
	}
	e.resolver = opts.Resolver
	if e.resolver == nil {
		e.resolver = registryResolver{e}
	}

	e.statuses.Subscribe(func(agentID string, from, to core.AgentStatus) {
		cbCtx := &CallbackContext{AgentID: agentID, From: from, To: to}
		if err := e.callbacks.ExecuteCallbacks(context.Background(), CallbackOnStatusChange, cbCtx); err != nil {
			e.logger.Warn("Status callback failed", "agent_id", agentID, "error", err)
		}
	})
	return e
}

// Register adds or replaces an agent.
func (e *Engine) Register(a *core.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[a.ID] = a.Clone()
	return nil
}

// Unregister removes an agent and its tracked state.
func (e *Engine) Unregister(agentID string) {
	e.mu.Lock()
	delete(e.agents, agentID)
	e.mu.Unlock()
	e.statuses.Forget(agentID)
	e.progressMu.Lock()
	delete(e.progress, agentID)
	e.progressMu.Unlock()
}

// Agent returns a copy of a registered agent with its current status.
func (e *Engine) Agent(agentID string) (*core.Agent, bool) {
	e.mu.RLock()
	a, ok := e.agents[agentID]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c := a.Clone()
	c.Status = e.statuses.Status(agentID)
	return c, true
}

// Agents returns copies of all registered agents ordered by id.
func (e *Engine) Agents() []*core.Agent {
	e.mu.RLock()
	ids := make([]string, 0, len(e.agents))
	for id := range e.agents {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	slices.Sort(ids)

	out := make([]*core.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := e.Agent(id); ok {
			out = append(out, a)
		}
	}
	return out
}

// Status returns the lifecycle status of an agent.
func (e *Engine) Status(agentID string) core.AgentStatus {
	return e.statuses.Status(agentID)
}

// StatusBoard exposes the board for subscriptions.
func (e *Engine) StatusBoard() *StatusBoard { return e.statuses }

// Progress returns the live progress of the agent's latest run.
func (e *Engine) Progress(agentID string) (core.Snapshot, bool) {
	e.progressMu.RLock()
	p, ok := e.progress[agentID]
	e.progressMu.RUnlock()
	if !ok {
		return core.Snapshot{}, false
	}
	return p.Snapshot(), true
}

// Reports returns the report store.
func (e *Engine) Reports() core.ReportStore { return e.reports }

// RunOptions customizes a single Execute or Invoke call.
type RunOptions struct {
	OnProgress core.ProgressFunc
	OnLog      core.LogFunc
	// OnCollaborators observes per-collaborator progress of composite runs.
	OnCollaborators func(progress.State)
	// Collaborators bypasses the resolver for composite agents.
	Collaborators []*core.Agent
	// SkipReport disables report persistence for this run.
	SkipReport bool

	runID string
}

// Execute runs req to completion. The result is never nil. A
// *core.ConfigurationError is returned for invalid requests and a
// *core.FatalExecutionError when the run failed; in both cases the result
// carries success=false and the final log line as its error.
func (e *Engine) Execute(ctx context.Context, req core.ExecutionRequest, optFns ...func(o *RunOptions)) (*core.ExecutionResult, error) {
	ro := RunOptions{}
	for _, fn := range optFns {
		fn(&ro)
	}
	if ro.runID == "" {
		ro.runID = core.NewID()
	}

	if err := req.Validate(); err != nil {
		ro.OnLog.Log(err.Error())
		return core.FailedResult("", err.Error()), err
	}
	agent := req.Agent

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return core.FailedResult("", "execution cancelled"), &core.FatalExecutionError{AgentID: agent.ID, Err: err}
		}
		defer e.sem.Release(1)
	}

	if err := e.statuses.Transition(agent.ID, core.StatusRunning); err != nil {
		err = fmt.Errorf("%w: %s", ErrAgentBusy, agent.ID)
		return core.FailedResult("", err.Error()), err
	}

	start := time.Now()
	rec := core.NewExecutionProgress(start)
	e.progressMu.Lock()
	e.progress[agent.ID] = rec
	e.progressMu.Unlock()

	onProgress := func(ev core.ProgressEvent) {
		rec.Apply(ev)
		ro.OnProgress.Emit(ev)
	}
	onLog := func(msg string) {
		rec.AppendLog(msg)
		ro.OnLog.Log(msg)
	}

	if req.Limiter == nil && e.config.MaxModelCalls > 0 {
		req.Limiter = core.NewModelLimiter(e.config.MaxModelCalls)
	}

	log := e.logger
	if rl, ok := log.(*logging.RunLogger); ok {
		log = rl.WithRun(ro.runID, agent.ID)
	}

	cbCtx := &CallbackContext{RunID: ro.runID, AgentID: agent.ID, Request: &req}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeRun, cbCtx); err != nil {
		onLog(fmt.Sprintf("Execution rejected: %v", err))
		return e.finish(ctx, ro, req, core.FailedResult("", rec.LastLog()), err, start, log)
	}

	e.metrics.RunStarted()
	log.Info("Run started", "kind", agent.Kind, "data_source", req.DataSource.ID)

	var (
		res *core.ExecutionResult
		err error
	)
	switch {
	case agent.IsComposite():
		res, err = e.runComposite(ctx, req, ro, onProgress, onLog)
	case agent.Kind.IsComposite():
		onLog(fmt.Sprintf("Warning: %s is a %s agent without collaborators, running it as a single agent", agent.DisplayName(), agent.Kind))
		log.Warn("Composite agent has no collaborators, falling back to single-agent execution")
		res, err = e.runner.Execute(ctx, req, onProgress, onLog)
	default:
		res, err = e.runner.Execute(ctx, req, onProgress, onLog)
	}
	if err == nil && !res.Success {
		err = &core.FatalExecutionError{AgentID: agent.ID, Err: errors.New(res.Error)}
	}

	e.metrics.RunFinished(string(agent.Kind), string(res.Method), res.Success, time.Since(start))
	return e.finish(ctx, ro, req, res, err, start, log)
}

func (e *Engine) runComposite(ctx context.Context, req core.ExecutionRequest, ro RunOptions, onProgress core.ProgressFunc, onLog core.LogFunc) (*core.ExecutionResult, error) {
	collaborators := ro.Collaborators
	if collaborators == nil {
		var err error
		collaborators, err = e.resolver.Resolve(ctx, req.Agent.Collaborators())
		if err != nil {
			onLog(fmt.Sprintf("Collaborator resolution failed: %v", err))
			return core.FailedResult(core.MethodCollaborative, fmt.Sprintf("Collaborator resolution failed: %v", err)), err
		}
	}

	runs := &collaboratorRuns{e: e, records: make(map[string]*core.ExecutionProgress)}
	return e.coordinator.Run(ctx, orchestrator.Request{
		ExecutionRequest:       req,
		Collaborators:          collaborators,
		OnProgress:             onProgress,
		OnLog:                  onLog,
		OnStatus:               ro.OnCollaborators,
		OnCollaboratorStart:    runs.start,
		OnCollaboratorProgress: runs.progress,
		OnCollaboratorLog:      runs.log,
		OnCollaboratorDone:     runs.done,
	})
}

// collaboratorRuns gives every collaborator of a composite run its own
// status and progress record.
type collaboratorRuns struct {
	e       *Engine
	mu      sync.Mutex
	records map[string]*core.ExecutionProgress
}

func (c *collaboratorRuns) start(collab *core.Agent) error {
	if err := c.e.statuses.Transition(collab.ID, core.StatusRunning); err != nil {
		return fmt.Errorf("%w: %s", ErrAgentBusy, collab.ID)
	}
	rec := core.NewExecutionProgress(time.Now())
	c.mu.Lock()
	c.records[collab.ID] = rec
	c.mu.Unlock()
	c.e.progressMu.Lock()
	c.e.progress[collab.ID] = rec
	c.e.progressMu.Unlock()
	return nil
}

func (c *collaboratorRuns) record(id string) *core.ExecutionProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[id]
}

func (c *collaboratorRuns) progress(id string, ev core.ProgressEvent) {
	if rec := c.record(id); rec != nil {
		rec.Apply(ev)
	}
}

func (c *collaboratorRuns) log(id string, msg string) {
	if rec := c.record(id); rec != nil {
		rec.AppendLog(msg)
	}
}

func (c *collaboratorRuns) done(collab *core.Agent, res *core.ExecutionResult) {
	next := core.StatusCompleted
	if !res.Success {
		next = core.StatusError
	}
	if err := c.e.statuses.Transition(collab.ID, next); err != nil {
		c.e.logger.Error("Status update failed", "agent_id", collab.ID, "error", err)
	}
}

// finish settles status, callbacks and persistence for a run.
func (e *Engine) finish(ctx context.Context, ro RunOptions, req core.ExecutionRequest, res *core.ExecutionResult, runErr error, start time.Time, log logging.Logger) (*core.ExecutionResult, error) {
	agentID := req.Agent.ID
	cbCtx := &CallbackContext{RunID: ro.runID, AgentID: agentID, Request: &req, Result: res, Err: runErr}

	if runErr != nil {
		if err := e.statuses.Transition(agentID, core.StatusError); err != nil {
			log.Error("Status update failed", "error", err)
		}
		logging.LogRunExecution(log, string(req.Agent.Kind), string(res.Method), len(req.Agent.Collaborators()), time.Since(start), false, runErr)
		if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, cbCtx); err != nil {
			log.Warn("Error callback failed", "error", err)
		}
		return res, runErr
	}

	if !ro.SkipReport {
		r := core.NewReport(req.Agent, req.DataSource, res)
		// persistence outlives the caller's cancellation
		if err := e.reports.Save(context.WithoutCancel(ctx), r); err != nil {
			log.Warn("Report could not be saved", "error", err)
		} else {
			log.Debug("Report saved", "report_id", r.ID)
		}
	}

	if err := e.statuses.Transition(agentID, core.StatusCompleted); err != nil {
		log.Error("Status update failed", "error", err)
	}
	logging.LogRunExecution(log, string(req.Agent.Kind), string(res.Method), len(req.Agent.Collaborators()), time.Since(start), true, nil)
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterRun, cbCtx); err != nil {
		log.Warn("After-run callback failed", "error", err)
	}
	return res, nil
}

// RunAgent executes a registered agent against ds.
func (e *Engine) RunAgent(ctx context.Context, agentID string, ds *core.DataSource, opts core.ExecutionOptions, optFns ...func(o *RunOptions)) (*core.ExecutionResult, error) {
	agent, ok := e.Agent(agentID)
	if !ok {
		err := core.NewConfigurationError(core.ErrUnknownAgent, agentID)
		return core.FailedResult("", err.Error()), err
	}
	return e.Execute(ctx, core.ExecutionRequest{Agent: agent, DataSource: ds, Options: opts}, optFns...)
}

// Invoke starts req in the background and streams its events. The stream
// ends with an EventResult and is then closed. Consumers must drain the
// channel; a full buffer blocks the run until ctx ends.
func (e *Engine) Invoke(ctx context.Context, req core.ExecutionRequest, optFns ...func(o *RunOptions)) (string, <-chan Event) {
	runID := core.NewID()
	agentID := ""
	if req.Agent != nil {
		agentID = req.Agent.ID
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.runsMu.Lock()
	e.activeRuns[runID] = cancel
	e.runsMu.Unlock()

	events := make(chan Event, e.config.EventBufferSize)
	emit := func(ev Event) {
		ev.RunID, ev.AgentID, ev.Timestamp = runID, agentID, time.Now()
		select {
		case events <- ev:
		case <-runCtx.Done():
		}
	}

	go func() {
		defer func() {
			cancel()
			e.runsMu.Lock()
			delete(e.activeRuns, runID)
			e.runsMu.Unlock()
			close(events)
		}()

		res, err := e.Execute(runCtx, req, append(optFns, func(o *RunOptions) {
			o.runID = runID
			userProgress, userLog, userCollab := o.OnProgress, o.OnLog, o.OnCollaborators
			o.OnProgress = func(ev core.ProgressEvent) {
				userProgress.Emit(ev)
				emit(Event{Type: EventProgress, Progress: &ev})
			}
			o.OnLog = func(msg string) {
				userLog.Log(msg)
				emit(Event{Type: EventLog, Message: msg})
			}
			o.OnCollaborators = func(st progress.State) {
				if userCollab != nil {
					userCollab(st)
				}
				emit(Event{Type: EventCollaborators, Collaborators: &st})
			}
		})...)

		// the result is delivered even when the run was cancelled
		ev := Event{RunID: runID, AgentID: agentID, Type: EventResult, Timestamp: time.Now(), Result: res, Err: err}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}()

	return runID, events
}

// Cancel stops a run started with Invoke.
func (e *Engine) Cancel(runID string) bool {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	cancel, ok := e.activeRuns[runID]
	if ok {
		cancel()
	}
	return ok
}

// ActiveRuns returns the ids of in-flight Invoke runs.
func (e *Engine) ActiveRuns() []string {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	ids := make([]string, 0, len(e.activeRuns))
	for id := range e.activeRuns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type registryResolver struct{ e *Engine }

// Resolve returns the registered agents for ids in order. Unknown ids yield
// a ConfigurationError listing them.
func (r registryResolver) Resolve(_ context.Context, ids []string) ([]*core.Agent, error) {
	out := make([]*core.Agent, 0, len(ids))
	var missing []string
	for _, id := range ids {
		a, ok := r.e.Agent(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, a)
	}
	if len(missing) > 0 {
		err := core.NewConfigurationError(core.ErrCollaboratorsRequired, "unknown collaborators "+strings.Join(missing, ", "))
		err.Missing = missing
		return nil, err
	}
	return out, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/stats"
)

// Executor performs the real analysis work for a run. backend.Selector
// satisfies it.
type Executor interface {
	Execute(ctx context.Context, req core.ExecutionRequest, logf core.LogFunc) *core.ExecutionResult
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req core.ExecutionRequest, logf core.LogFunc) *core.ExecutionResult

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req core.ExecutionRequest, logf core.LogFunc) *core.ExecutionResult {
	return f(ctx, req, logf)
}

// ErrCancelled is the cause recorded when a run's context ends early.
var ErrCancelled = errors.New("execution cancelled")

// Options configures a Runner.
type Options struct {
	// Stages overrides DefaultStages. Invalid schedules fall back to the default.
	Stages []Stage
	// BackendStage names the stage at which the executor is started.
	BackendStage string
	// PacingScale multiplies every stage duration; 0 disables sleeping.
	PacingScale float64
	Logger      logging.Logger
}

// Runner plays the stage schedule for one agent at a time. A Runner holds
// no per-run state and may be shared across goroutines.
type Runner struct {
	exec         Executor
	stages       []Stage
	backendStage string
	scale        float64
	logger       logging.Logger
}

// New creates a Runner around exec.
func New(exec Executor, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Stages:       DefaultStages,
		BackendStage: StageProcessing,
		PacingScale:  1,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	stages := opts.Stages
	if err := ValidateStages(stages); err != nil {
		logger.Warn("Invalid stage schedule, using defaults", "error", err)
		stages = DefaultStages
	}

	return &Runner{
		exec:         exec,
		stages:       append([]Stage(nil), stages...),
		backendStage: opts.BackendStage,
		scale:        opts.PacingScale,
		logger:       logger,
	}
}

// Stages returns a copy of the schedule in use.
func (r *Runner) Stages() []Stage {
	return append([]Stage(nil), r.stages...)
}

// Run executes req and never returns an error: configuration problems,
// cancellation and panics all become an unsuccessful result whose Error is
// the final log line.
func (r *Runner) Run(ctx context.Context, req core.ExecutionRequest, onProgress core.ProgressFunc, onLog core.LogFunc) *core.ExecutionResult {
	res, _ := r.Execute(ctx, req, onProgress, onLog)
	return res
}

// Execute is Run that also returns the cause of an unsuccessful result, a
// *core.ConfigurationError or a *core.FatalExecutionError. No callback is
// invoked after Execute returns.
func (r *Runner) Execute(ctx context.Context, req core.ExecutionRequest, onProgress core.ProgressFunc, onLog core.LogFunc) (res *core.ExecutionResult, err error) {
	run := &run{Runner: r, req: req, onProgress: onProgress, onLog: onLog, start: time.Now()}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Run panicked", "panic", p, "stack", string(debug.Stack()))
			res, err = run.fail(fmt.Errorf("internal error: %v", p))
		}
	}()

	if err := req.Validate(); err != nil {
		return run.fail(err)
	}
	return run.play(ctx)
}

type backendOutcome struct {
	res *core.ExecutionResult
	err error
}

type run struct {
	*Runner
	req        core.ExecutionRequest
	onProgress core.ProgressFunc
	onLog      core.LogFunc
	start      time.Time

	// the backend logs from its own goroutine
	mu      sync.Mutex
	lastLog string
	closed  bool
}

func (r *run) log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.lastLog = msg
	r.onLog.Log(msg)
}

// close writes the final log line. Later messages from an abandoned backend
// are dropped.
func (r *run) close(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.lastLog = msg
	r.onLog.Log(msg)
	r.closed = true
}

func (r *run) play(ctx context.Context) (*core.ExecutionResult, error) {
	eta := r.start.Add(TotalDuration(r.stages, r.scale))
	r.onProgress.Emit(core.ProgressEvent{Progress: 0, Stage: r.stages[0].Name, EstimatedCompletion: &eta})

	var done chan backendOutcome
	for _, stage := range r.stages {
		if done == nil && (stage.Name == r.backendStage || stage.Weight >= 100) {
			done = r.startBackend(ctx)
		}

		r.onProgress.Emit(core.ProgressEvent{Progress: stage.Weight, Stage: stage.Name})
		for _, msg := range r.stageMessages(stage) {
			r.log(msg)
		}
		if err := sleep(ctx, scaled(stage.Duration, r.scale)); err != nil {
			return r.fail(ErrCancelled)
		}
	}

	var outcome backendOutcome
	select {
	case outcome = <-done:
	default:
		r.log("Waiting for analysis to complete")
		select {
		case outcome = <-done:
		case <-ctx.Done():
			return r.fail(ErrCancelled)
		}
	}
	if outcome.err != nil {
		return r.fail(outcome.err)
	}
	if ctx.Err() != nil {
		return r.fail(ErrCancelled)
	}

	res := outcome.res
	r.close(fmt.Sprintf("Analysis completed via %s: %d insights, %d visualizations", res.Method, len(res.Insights), len(res.Visualizations)))
	r.logger.Debug("Run completed", "agent_id", r.req.Agent.ID, "method", res.Method, "duration", time.Since(r.start))
	return res, nil
}

// startBackend launches the executor once. The returned channel is buffered
// so the goroutine never leaks when the run is abandoned.
func (r *run) startBackend(ctx context.Context) chan backendOutcome {
	done := make(chan backendOutcome, 1)
	logf := core.LogFunc(r.log)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Executor panicked", "panic", p, "stack", string(debug.Stack()))
				done <- backendOutcome{err: fmt.Errorf("internal error: %v", p)}
			}
		}()
		res := r.exec.Execute(ctx, r.req, logf)
		if res == nil {
			done <- backendOutcome{err: errors.New("executor returned no result")}
			return
		}
		done <- backendOutcome{res: res}
	}()
	return done
}

func (r *run) fail(err error) (*core.ExecutionResult, error) {
	agentID := ""
	if r.req.Agent != nil {
		agentID = r.req.Agent.ID
	}
	if !core.IsConfigurationError(err) {
		err = &core.FatalExecutionError{AgentID: agentID, Err: err}
	}
	r.close(fmt.Sprintf("Execution failed: %v", err))
	r.logger.Error("Run failed", "agent_id", agentID, "error", err, "duration", time.Since(r.start))
	r.mu.Lock()
	defer r.mu.Unlock()
	return core.FailedResult("", r.lastLog), err
}

func (r *run) stageMessages(stage Stage) []string {
	ds := r.req.DataSource
	switch stage.Name {
	case StageInitializing:
		return []string{fmt.Sprintf("Initializing %s (%s)", r.req.Agent.DisplayName(), r.req.Agent.Kind)}
	case StageLoading:
		return []string{fmt.Sprintf("Loading data source %q: %d rows, %d columns", ds.Name, len(ds.Rows), len(ds.Columns))}
	case StageAnalyzing:
		return []string{fmt.Sprintf("Detected %d numeric and %d categorical columns",
			len(stats.NumericColumns(ds)), len(stats.CategoricalColumns(ds)))}
	case StageProcessing:
		return []string{"Processing data"}
	case StageInsights:
		return []string{"Generating insights"}
	case StageVisualizations:
		return []string{"Creating visualizations"}
	case StageFinalizing:
		return []string{"Finalizing results"}
	default:
		return []string{stage.Name}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

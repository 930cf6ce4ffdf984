package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/progress"
	"github.com/hupe1980/insightmesh/synthesis"
)

// StageRunner runs one agent end to end. pipeline.Runner satisfies it.
type StageRunner interface {
	Run(ctx context.Context, req core.ExecutionRequest, onProgress core.ProgressFunc, onLog core.LogFunc) *core.ExecutionResult
}

// Request is one composite execution.
type Request struct {
	core.ExecutionRequest
	// Collaborators are the resolved records for Agent.CollaboratorIDs.
	Collaborators []*core.Agent
	// OnProgress receives the aggregated overall progress.
	OnProgress core.ProgressFunc
	// OnLog receives run messages, tagged with the collaborator name.
	OnLog core.LogFunc
	// OnStatus receives the per-collaborator view on every change.
	OnStatus func(progress.State)

	// OnCollaboratorStart is called before each collaborator runs. An error
	// fails that collaborator without running it.
	OnCollaboratorStart func(collab *core.Agent) error
	// OnCollaboratorProgress and OnCollaboratorLog receive a collaborator's
	// own events, untagged.
	OnCollaboratorProgress func(collabID string, ev core.ProgressEvent)
	OnCollaboratorLog      func(collabID string, msg string)
	// OnCollaboratorDone is called with the result of every collaborator
	// that started.
	OnCollaboratorDone func(collab *core.Agent, res *core.ExecutionResult)
}

// Options configures a Coordinator.
type Options struct {
	// SynthesisInterval and PacingScale drive the synthesis progress ticks.
	SynthesisInterval time.Duration
	PacingScale       float64
	Logger            logging.Logger
}

// Coordinator executes composite agents.
type Coordinator struct {
	runner            StageRunner
	synth             *synthesis.Synthesizer
	synthesisInterval time.Duration
	scale             float64
	logger            logging.Logger
}

// New creates a Coordinator.
func New(runner StageRunner, synth *synthesis.Synthesizer, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		SynthesisInterval: 300 * time.Millisecond,
		PacingScale:       1,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if synth == nil {
		synth = synthesis.New()
	}
	return &Coordinator{
		runner:            runner,
		synth:             synth,
		synthesisInterval: opts.SynthesisInterval,
		scale:             opts.PacingScale,
		logger:            logging.OrNoOp(opts.Logger),
	}
}

// Run executes the composite agent. The returned result is never nil. The
// error is a *core.ConfigurationError when collaborators are missing or
// nested, or a *core.FatalExecutionError wrapping a *BatchError when a
// collaborator failed.
func (c *Coordinator) Run(ctx context.Context, req Request) (*core.ExecutionResult, error) {
	b := &batch{Coordinator: c, req: req, onLog: req.OnLog}

	if err := req.Validate(); err != nil {
		return b.fail(err)
	}
	collaborators, err := b.resolve()
	if err != nil {
		return b.fail(err)
	}
	b.collaborators = collaborators

	mode := req.Options.ExecutionMode
	if mode == "" {
		mode = req.Agent.ExecutionMode()
	}
	b.mode = mode

	ids := make([]string, len(collaborators))
	for i, a := range collaborators {
		ids[i] = a.ID
	}
	aggCtx, stopAgg := context.WithCancel(ctx)
	defer stopAgg()
	b.agg = progress.New(ids, func(o *progress.Options) {
		o.SynthesisInterval = c.synthesisInterval
		o.PacingScale = c.scale
		o.Logger = c.logger
		o.OnOverall = func(overall int, stage string) {
			req.OnProgress.Emit(core.ProgressEvent{Progress: overall, Stage: stage})
		}
		o.OnChange = req.OnStatus
	})
	b.agg.Start(aggCtx)

	b.log(fmt.Sprintf("Starting %s execution of %d collaborators", mode, len(collaborators)))
	c.logger.Info("Composite execution started", "agent_id", req.Agent.ID, "mode", mode, "collaborators", len(collaborators))

	var parts []synthesis.Contribution
	if mode == core.ModeParallel {
		parts, err = b.runParallel(ctx)
	} else {
		parts, err = b.runSequential(ctx)
	}
	if err != nil {
		return b.fail(err)
	}

	return b.synthesize(ctx, parts)
}

type batch struct {
	*Coordinator
	req           Request
	mode          core.ExecutionMode
	collaborators []*core.Agent
	agg           *progress.Aggregator
	onLog         core.LogFunc

	// serializes the caller's log sink across parallel collaborators
	mu      sync.Mutex
	lastLog string
	closed  bool
}

// log forwards a batch-level message and records it as the latest one.
func (b *batch) log(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.lastLog = msg
	b.onLog.Log(msg)
}

// emit forwards a tagged collaborator message.
func (b *batch) emit(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.onLog.Log(msg)
}

// close writes the final message. Nothing is forwarded afterwards.
func (b *batch) close(msg string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.lastLog = msg
		b.onLog.Log(msg)
		b.closed = true
	}
	return b.lastLog
}

func (b *batch) fail(err error) (*core.ExecutionResult, error) {
	if !core.IsConfigurationError(err) {
		agentID := ""
		if b.req.Agent != nil {
			agentID = b.req.Agent.ID
		}
		err = &core.FatalExecutionError{AgentID: agentID, Err: err}
	}
	msg := b.close(fmt.Sprintf("Collaborative execution failed: %v", err))
	b.logger.Error("Composite execution failed", "error", err)
	return core.FailedResult(core.MethodCollaborative, msg), err
}

// resolve matches the declared collaborator ids against the supplied
// records, applying the maxCollaborators cap.
func (b *batch) resolve() ([]*core.Agent, error) {
	agent := b.req.Agent
	ids := agent.Collaborators()
	if len(ids) == 0 {
		return nil, core.NewConfigurationError(core.ErrCollaboratorsRequired, fmt.Sprintf("agent %s declares no collaborators", agent.ID))
	}
	if limit := agent.MaxCollaborators(); limit > 0 && len(ids) > limit {
		b.log(fmt.Sprintf("Warning: %d collaborators configured, limiting to %d", len(ids), limit))
		b.logger.Warn("Collaborator list truncated", "agent_id", agent.ID, "configured", len(ids), "max", limit)
		ids = ids[:limit]
	}

	byID := make(map[string]*core.Agent, len(b.req.Collaborators))
	for _, a := range b.req.Collaborators {
		if a != nil {
			byID[a.ID] = a
		}
	}

	out := make([]*core.Agent, 0, len(ids))
	var missing, nested []string
	for _, id := range ids {
		a, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case a.IsComposite():
			nested = append(nested, id)
		default:
			out = append(out, a)
		}
	}
	if len(missing) > 0 {
		err := core.NewConfigurationError(core.ErrCollaboratorsRequired, fmt.Sprintf("unresolved collaborators %v", missing))
		err.Missing = missing
		return nil, err
	}
	if len(nested) > 0 {
		return nil, core.NewConfigurationError(core.ErrNestedComposite, fmt.Sprintf("collaborators %v are composite agents", nested))
	}
	return out, nil
}

// runOne executes a single collaborator with tagged callbacks.
func (b *batch) runOne(ctx context.Context, collab *core.Agent) synthesis.Contribution {
	req := b.req.ExecutionRequest
	req.Agent = collab

	tag := "[" + collab.DisplayName() + "] "
	if start := b.req.OnCollaboratorStart; start != nil {
		if err := start(collab); err != nil {
			msg := fmt.Sprintf("Execution failed: %v", err)
			b.emit(tag + msg)
			b.logger.Warn("Collaborator could not start", "collaborator_id", collab.ID, "error", err)
			return synthesis.Contribution{Agent: collab, Result: core.FailedResult("", msg)}
		}
	}

	res := b.runner.Run(ctx, req,
		func(ev core.ProgressEvent) {
			b.agg.Report(collab.ID, ev)
			if f := b.req.OnCollaboratorProgress; f != nil {
				f(collab.ID, ev)
			}
		},
		func(msg string) {
			b.emit(tag + msg)
			if f := b.req.OnCollaboratorLog; f != nil {
				f(collab.ID, msg)
			}
		},
	)
	if res.Success {
		b.agg.Complete(collab.ID)
	}
	if done := b.req.OnCollaboratorDone; done != nil {
		done(collab, res)
	}
	return synthesis.Contribution{Agent: collab, Result: res}
}

func (b *batch) synthesize(ctx context.Context, parts []synthesis.Contribution) (*core.ExecutionResult, error) {
	b.log("All collaborators completed, synthesizing results")

	var res *core.ExecutionResult
	merged := make(chan struct{})
	go func() {
		defer close(merged)
		defer func() {
			if p := recover(); p != nil {
				b.logger.Error("Synthesis panicked", "panic", p, "stack", string(debug.Stack()))
				b.log(fmt.Sprintf("Synthesis failed (internal error: %v), falling back to mechanical merge", p))
				res = synthesis.Merge(parts)
				res.SynthesisError = (&core.SynthesisError{Err: fmt.Errorf("internal error: %v", p)}).Error()
			}
		}()
		res = b.synth.Synthesize(ctx, b.req.ExecutionRequest, parts, b.log)
	}()

	for _, ch := range []<-chan struct{}{merged, b.agg.SynthesisDone()} {
		select {
		case <-ch:
		case <-ctx.Done():
			return b.fail(errors.New("execution cancelled"))
		}
	}

	b.close(fmt.Sprintf("Collaborative execution completed using %s synthesis", res.SynthesisStrategy))
	return res, nil
}

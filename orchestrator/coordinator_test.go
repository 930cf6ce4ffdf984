package orchestrator

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/insightmesh/backend"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/pipeline"
	"github.com/hupe1980/insightmesh/progress"
	"github.com/hupe1980/insightmesh/synthesis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, req core.ExecutionRequest, onProgress core.ProgressFunc, onLog core.LogFunc) *core.ExecutionResult

func (f runnerFunc) Run(ctx context.Context, req core.ExecutionRequest, onProgress core.ProgressFunc, onLog core.LogFunc) *core.ExecutionResult {
	return f(ctx, req, onProgress, onLog)
}

// scripted succeeds for every agent except those listed in fail.
func scripted(calls *[]string, mu *sync.Mutex, fail ...string) runnerFunc {
	return func(_ context.Context, req core.ExecutionRequest, onProgress core.ProgressFunc, onLog core.LogFunc) *core.ExecutionResult {
		mu.Lock()
		*calls = append(*calls, req.Agent.ID)
		mu.Unlock()

		onProgress.Emit(core.ProgressEvent{Progress: 50, Stage: pipeline.StageProcessing})
		onLog.Log("working")
		if slices.Contains(fail, req.Agent.ID) {
			onLog.Log("Execution failed: boom")
			return core.FailedResult("", "Execution failed: boom")
		}
		onProgress.Emit(core.ProgressEvent{Progress: 100, Stage: pipeline.StageFinalizing})
		return &core.ExecutionResult{
			Success:  true,
			Method:   core.MethodMock,
			Summary:  "summary " + req.Agent.ID,
			Insights: []string{"insight " + req.Agent.ID},
		}
	}
}

type collector struct {
	mu       sync.Mutex
	logs     []string
	progress []int
	states   []progress.State
}

func (c *collector) request(team *core.Agent, collaborators ...*core.Agent) Request {
	return Request{
		ExecutionRequest: core.ExecutionRequest{
			Agent:      team,
			DataSource: core.NewDataSource("ds", "Sales", []string{"region", "revenue"}, []core.Row{{"region": "North", "revenue": 1}}),
		},
		Collaborators: collaborators,
		OnProgress: func(ev core.ProgressEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.progress = append(c.progress, ev.Progress)
		},
		OnLog: func(msg string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.logs = append(c.logs, msg)
		},
		OnStatus: func(st progress.State) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.states = append(c.states, st)
		},
	}
}

func agent(id string) *core.Agent {
	return &core.Agent{ID: id, Name: strings.ToUpper(id), Kind: core.KindAnalyzer}
}

func team(mode core.ExecutionMode, ids ...string) *core.Agent {
	return &core.Agent{
		ID:              "team",
		Name:            "Team",
		Kind:            core.KindCollaborative,
		CollaboratorIDs: ids,
		Configuration:   map[string]any{core.ConfigExecutionMode: string(mode)},
	}
}

func newCoordinator(r StageRunner) *Coordinator {
	return New(r, synthesis.New(), func(o *Options) { o.PacingScale = 0 })
}

func TestSequential_LogsAreGroupedPerCollaborator(t *testing.T) {
	runner := pipeline.New(backend.New(), func(o *pipeline.Options) { o.PacingScale = 0 })
	c := &collector{}

	res, err := newCoordinator(runner).Run(context.Background(), c.request(team(core.ModeSequential, "a", "b"), agent("a"), agent("b")))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, core.MethodCollaborative, res.Method)

	lastA, firstB := -1, -1
	for i, l := range c.logs {
		if strings.HasPrefix(l, "[A] ") {
			lastA = i
		}
		if strings.HasPrefix(l, "[B] ") && firstB < 0 {
			firstB = i
		}
	}
	require.GreaterOrEqual(t, lastA, 0)
	require.GreaterOrEqual(t, firstB, 0)
	assert.Less(t, lastA, firstB, "all of A's logs precede B's")
}

func TestSequential_MechanicalSynthesis(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := &collector{}
	res, err := newCoordinator(scripted(&calls, &mu)).Run(context.Background(), c.request(team(core.ModeSequential, "a", "b"), agent("b"), agent("a")))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, calls, "declared order, not supplied order")
	assert.Equal(t, core.SynthesisMechanical, res.SynthesisStrategy)
	assert.Equal(t, []string{"insight a", "insight b"}, res.Insights)
	assert.Contains(t, res.Summary, "## A\n\nsummary a")

	require.NotEmpty(t, c.progress)
	assert.Equal(t, 100, c.progress[len(c.progress)-1])
	assert.True(t, slices.IsSorted(c.progress), "overall progress never decreases: %v", c.progress)

	require.NotEmpty(t, c.states)
	final := c.states[len(c.states)-1]
	assert.True(t, final.Collaborators["a"].Completed)
	assert.True(t, final.Collaborators["b"].Completed)
	assert.True(t, final.SynthesisStarted)
}

func TestSequential_FailureAbortsRemaining(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := &collector{}
	res, err := newCoordinator(scripted(&calls, &mu, "b")).Run(context.Background(),
		c.request(team(core.ModeSequential, "a", "b", "c"), agent("a"), agent("b"), agent("c")))

	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.False(t, res.Success)
	assert.Equal(t, c.logs[len(c.logs)-1], res.Error)

	var fatal *core.FatalExecutionError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "team", fatal.AgentID)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, core.ModeSequential, be.Mode)
	assert.Equal(t, "b", be.CollaboratorID)
	assert.Equal(t, []string{"c"}, be.Skipped)
	require.Len(t, be.Completed, 1)
	assert.Equal(t, "a", be.Completed[0].Agent.ID)
}

func TestParallel_RunsConcurrently(t *testing.T) {
	var arrived atomic.Int32
	barrier := make(chan struct{})
	r := runnerFunc(func(ctx context.Context, req core.ExecutionRequest, _ core.ProgressFunc, _ core.LogFunc) *core.ExecutionResult {
		if arrived.Add(1) == 2 {
			close(barrier)
		}
		select {
		case <-barrier:
		case <-time.After(2 * time.Second):
			return core.FailedResult("", "collaborators did not overlap")
		}
		return &core.ExecutionResult{Success: true, Insights: []string{req.Agent.ID}}
	})

	c := &collector{}
	res, err := newCoordinator(r).Run(context.Background(), c.request(team(core.ModeParallel, "a", "b"), agent("a"), agent("b")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Insights, "results are joined in declared order")
}

func TestParallel_FailureFailsJoinAfterAllSettle(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := &collector{}
	res, err := newCoordinator(scripted(&calls, &mu, "a")).Run(context.Background(),
		c.request(team(core.ModeParallel, "a", "b"), agent("a"), agent("b")))

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.ElementsMatch(t, []string{"a", "b"}, calls, "siblings are not cancelled")

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, core.ModeParallel, be.Mode)
	assert.Equal(t, "a", be.CollaboratorID)
	require.Len(t, be.Completed, 1)
	assert.Equal(t, "b", be.Completed[0].Agent.ID)
	assert.Empty(t, be.Skipped)
}

func TestOptionsOverrideExecutionMode(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := &collector{}
	req := c.request(team(core.ModeSequential, "a", "b"), agent("a"), agent("b"))
	req.Options.ExecutionMode = core.ModeParallel

	_, err := newCoordinator(scripted(&calls, &mu)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, slices.ContainsFunc(c.logs, func(l string) bool { return strings.Contains(l, "in parallel") }))
}

func TestRejectsNestedComposite(t *testing.T) {
	nested := team(core.ModeSequential, "x")
	nested.ID = "inner"

	c := &collector{}
	res, err := newCoordinator(scripted(new([]string), new(sync.Mutex))).Run(context.Background(),
		c.request(team(core.ModeSequential, "a", "inner"), agent("a"), nested))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNestedComposite)
	assert.True(t, core.IsConfigurationError(err))
	assert.False(t, res.Success)
}

func TestUnresolvedCollaborators(t *testing.T) {
	c := &collector{}
	_, err := newCoordinator(scripted(new([]string), new(sync.Mutex))).Run(context.Background(),
		c.request(team(core.ModeSequential, "a", "b", "c"), agent("a")))

	require.ErrorIs(t, err, core.ErrCollaboratorsRequired)
	var ce *core.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"b", "c"}, ce.Missing)
}

func TestMaxCollaboratorsTruncates(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	tm := team(core.ModeSequential, "a", "b", "c")
	tm.Configuration[core.ConfigMaxCollaborators] = 2

	c := &collector{}
	_, err := newCoordinator(scripted(&calls, &mu)).Run(context.Background(), c.request(tm, agent("a"), agent("b")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Contains(t, c.logs[0], "limiting to 2")
}

func TestCancelledDuringSynthesis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := runnerFunc(func(context.Context, core.ExecutionRequest, core.ProgressFunc, core.LogFunc) *core.ExecutionResult {
		return &core.ExecutionResult{Success: true}
	})
	coord := New(r, synthesis.New(), func(o *Options) { o.SynthesisInterval = time.Hour })

	c := &collector{}
	req := c.request(team(core.ModeSequential, "a"), agent("a"))
	req.OnProgress = nil
	req.OnLog = func(msg string) {
		if strings.HasPrefix(msg, "Collaborative execution completed") {
			t.Error("synthesis pacing was skipped")
		}
		if strings.Contains(msg, "mechanically") {
			cancel()
		}
	}

	res, err := coord.Run(ctx, req)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "execution cancelled"))
}

func TestCollaboratorHooks(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := &collector{}
	req := c.request(team(core.ModeParallel, "a", "b", "busy"), agent("a"), agent("b"), agent("busy"))

	var (
		hookMu  sync.Mutex
		started []string
		done    = map[string]bool{}
		ownLogs = map[string][]string{}
		events  = map[string]int{}
	)
	req.OnCollaboratorStart = func(collab *core.Agent) error {
		hookMu.Lock()
		defer hookMu.Unlock()
		if collab.ID == "busy" {
			return errors.New("agent is already running")
		}
		started = append(started, collab.ID)
		return nil
	}
	req.OnCollaboratorProgress = func(id string, ev core.ProgressEvent) {
		hookMu.Lock()
		defer hookMu.Unlock()
		events[id]++
	}
	req.OnCollaboratorLog = func(id string, msg string) {
		hookMu.Lock()
		defer hookMu.Unlock()
		ownLogs[id] = append(ownLogs[id], msg)
	}
	req.OnCollaboratorDone = func(collab *core.Agent, res *core.ExecutionResult) {
		hookMu.Lock()
		defer hookMu.Unlock()
		done[collab.ID] = res.Success
	}

	_, err := newCoordinator(scripted(&calls, &mu, "b")).Run(context.Background(), req)
	require.Error(t, err)

	slices.Sort(started)
	assert.Equal(t, []string{"a", "b"}, started)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, done)
	assert.NotContains(t, calls, "busy")
	assert.Equal(t, []string{"working"}, ownLogs["a"])
	assert.Equal(t, []string{"working", "Execution failed: boom"}, ownLogs["b"])
	assert.Equal(t, 2, events["a"])

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "b", be.CollaboratorID)
	assert.True(t, slices.ContainsFunc(c.logs, func(l string) bool {
		return l == "[BUSY] Execution failed: agent is already running"
	}))
}

func TestSynthesisPanicFallsBackToMerge(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	synth := synthesis.New(func(o *synthesis.Options) {
		o.ModelFactory = func(core.ExecutionOptions) (model.Model, error) { panic("boom") }
	})
	coord := New(scripted(&calls, &mu), synth, func(o *Options) { o.PacingScale = 0 })

	c := &collector{}
	req := c.request(team(core.ModeSequential, "a", "b"), agent("a"), agent("b"))
	req.Options.APIKey = "sk-test"

	res, err := coord.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, core.SynthesisMechanical, res.SynthesisStrategy)
	assert.Contains(t, res.SynthesisError, "internal error: boom")
	assert.Equal(t, []string{"insight a", "insight b"}, res.Insights)
}

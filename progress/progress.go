// Package progress aggregates collaborator progress into one overall
// percentage for composite runs.
//
// The Aggregator is a single-writer actor: every mutation of the
// collaborator status map happens on its own goroutine, fed by Report and
// Complete. Callbacks run on that goroutine and must not block.
package progress

import (
	"context"
	"math"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
)

// SynthesisWeight is the share of the total reserved for synthesis.
const SynthesisWeight = 20

// Overall computes the composite percentage from collaborator statuses and
// the synthesis state.
func Overall(statuses []core.CollaboratorStatus, synthesisStarted bool, synthesisProgress int) int {
	if len(statuses) == 0 {
		return 0
	}
	var completed, inProgress float64
	for _, s := range statuses {
		if s.Completed {
			completed += 100
		} else {
			inProgress += float64(s.Progress)
		}
	}
	var synthesis float64
	if synthesisStarted {
		synthesis = float64(synthesisProgress) * SynthesisWeight / 100
	}
	total := float64(len(statuses)*100 + SynthesisWeight)
	return min(100, int(math.Round((completed+inProgress+synthesis)/total*100)))
}

// State is a snapshot of the aggregator.
type State struct {
	Collaborators     map[string]core.CollaboratorStatus
	Order             []string
	Overall           int
	SynthesisStarted  bool
	SynthesisProgress int
}

// Options configures an Aggregator.
type Options struct {
	// SynthesisStep is the progress added on every synthesis tick.
	SynthesisStep int
	// SynthesisInterval is the tick period before scaling.
	SynthesisInterval time.Duration
	// PacingScale multiplies SynthesisInterval; 0 completes synthesis
	// pacing immediately.
	PacingScale float64
	// OnOverall observes every change of the overall percentage.
	OnOverall func(overall int, stage string)
	// OnChange receives a snapshot whenever the overall percentage changes.
	OnChange func(State)
	// OnSynthesisStart fires once when every collaborator completed.
	OnSynthesisStart func()
	// OnSynthesisComplete fires once when synthesis pacing reaches 100.
	OnSynthesisComplete func()
	Logger              logging.Logger
}

type update struct {
	id        string
	progress  int
	stage     string
	eta       *time.Time
	completed bool
}

// Aggregator tracks the progress of a fixed set of collaborators.
type Aggregator struct {
	opts  Options
	order []string
	inbox chan any
	done  chan struct{}
	synth chan struct{}
	final State
}

// New creates an aggregator for ids. Call Start before reporting.
func New(ids []string, optFns ...func(o *Options)) *Aggregator {
	opts := Options{
		SynthesisStep:     10,
		SynthesisInterval: 300 * time.Millisecond,
		PacingScale:       1,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SynthesisStep <= 0 {
		opts.SynthesisStep = 10
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Aggregator{
		opts:  opts,
		order: append([]string(nil), ids...),
		inbox: make(chan any, 64),
		done:  make(chan struct{}),
		synth: make(chan struct{}),
	}
}

// Start runs the actor until ctx ends.
func (a *Aggregator) Start(ctx context.Context) {
	go a.loop(ctx)
}

// Report records a progress event from collaborator id. Progress lower than
// the last reported value is ignored.
func (a *Aggregator) Report(id string, ev core.ProgressEvent) {
	u := update{id: id, progress: ev.Progress, stage: ev.Stage}
	if ev.EstimatedCompletion != nil {
		eta := *ev.EstimatedCompletion
		u.eta = &eta
	}
	a.send(u)
}

// Complete marks collaborator id as finished.
func (a *Aggregator) Complete(id string) {
	a.send(update{id: id, progress: 100, completed: true})
}

func (a *Aggregator) send(u update) {
	select {
	case a.inbox <- u:
	case <-a.done:
	}
}

// State returns the current snapshot, or the final one once the actor
// stopped.
func (a *Aggregator) State() State {
	reply := make(chan State, 1)
	select {
	case a.inbox <- reply:
	case <-a.done:
		return a.final
	}
	select {
	case s := <-reply:
		return s
	case <-a.done:
		return a.final
	}
}

// SynthesisDone is closed when synthesis pacing reaches 100.
func (a *Aggregator) SynthesisDone() <-chan struct{} { return a.synth }

// Done is closed when the actor stopped.
func (a *Aggregator) Done() <-chan struct{} { return a.done }

type actorState struct {
	statuses          map[string]core.CollaboratorStatus
	synthesisStarted  bool
	synthesisProgress int
	overall           int
}

func (a *Aggregator) loop(ctx context.Context) {
	st := &actorState{statuses: make(map[string]core.CollaboratorStatus, len(a.order))}
	for _, id := range a.order {
		st.statuses[id] = core.CollaboratorStatus{}
	}

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		a.final = a.snapshot(st)
		close(a.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.inbox:
			reply, ok := msg.(chan State)
			if ok {
				reply <- a.snapshot(st)
				continue
			}
			u := msg.(update)
			if !a.apply(st, u) {
				continue
			}
			if !st.synthesisStarted && a.allCompleted(st) {
				st.synthesisStarted = true
				a.opts.Logger.Debug("All collaborators completed, starting synthesis", "collaborators", len(a.order))
				if a.opts.OnSynthesisStart != nil {
					a.opts.OnSynthesisStart()
				}
				interval := time.Duration(float64(a.opts.SynthesisInterval) * a.opts.PacingScale)
				if interval <= 0 {
					a.advanceSynthesis(st, 100)
				} else {
					ticker = time.NewTicker(interval)
					tick = ticker.C
				}
			}
			a.publish(st, u.stage)
		case <-tick:
			a.advanceSynthesis(st, a.opts.SynthesisStep)
			if st.synthesisProgress >= 100 {
				ticker.Stop()
				tick = nil
			}
		}
	}
}

// apply folds u into the status map and reports whether anything changed.
func (a *Aggregator) apply(st *actorState, u update) bool {
	cur, ok := st.statuses[u.id]
	if !ok {
		a.opts.Logger.Warn("Progress from unknown collaborator ignored", "collaborator_id", u.id)
		return false
	}
	if cur.Completed {
		return false
	}
	next := cur
	if p := min(max(u.progress, 0), 100); p > next.Progress {
		next.Progress = p
	}
	if u.stage != "" {
		next.Stage = u.stage
	}
	if u.eta != nil && (next.EstimatedCompletion == nil || !u.eta.Equal(*next.EstimatedCompletion)) {
		next.EstimatedCompletion = u.eta
	}
	if u.completed {
		next.Completed = true
		next.Progress = 100
	}
	if next == cur {
		return false
	}
	st.statuses[u.id] = next
	return true
}

func (a *Aggregator) allCompleted(st *actorState) bool {
	if len(a.order) == 0 {
		return false
	}
	for _, id := range a.order {
		if !st.statuses[id].Completed {
			return false
		}
	}
	return true
}

func (a *Aggregator) advanceSynthesis(st *actorState, step int) {
	if st.synthesisProgress >= 100 {
		return
	}
	st.synthesisProgress = min(100, st.synthesisProgress+step)
	a.publish(st, "Synthesizing results")
	if st.synthesisProgress == 100 {
		close(a.synth)
		if a.opts.OnSynthesisComplete != nil {
			a.opts.OnSynthesisComplete()
		}
	}
}

func (a *Aggregator) publish(st *actorState, stage string) {
	overall := Overall(a.ordered(st), st.synthesisStarted, st.synthesisProgress)
	if overall == st.overall {
		return
	}
	st.overall = overall
	if a.opts.OnOverall != nil {
		a.opts.OnOverall(overall, stage)
	}
	if a.opts.OnChange != nil {
		a.opts.OnChange(a.snapshot(st))
	}
}

func (a *Aggregator) ordered(st *actorState) []core.CollaboratorStatus {
	out := make([]core.CollaboratorStatus, len(a.order))
	for i, id := range a.order {
		out[i] = st.statuses[id]
	}
	return out
}

func (a *Aggregator) snapshot(st *actorState) State {
	m := make(map[string]core.CollaboratorStatus, len(st.statuses))
	for k, v := range st.statuses {
		m[k] = v
	}
	return State{
		Collaborators:     m,
		Order:             append([]string(nil), a.order...),
		Overall:           st.overall,
		SynthesisStarted:  st.synthesisStarted,
		SynthesisProgress: st.synthesisProgress,
	}
}

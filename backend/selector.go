package backend

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/metrics"
	"github.com/hupe1980/insightmesh/model/provider"
	"github.com/hupe1980/insightmesh/remote"
)

// Tier is one execution backend. Execute returns either a result or an
// error; any error is treated as a downgrade signal by the Selector.
type Tier interface {
	Method() core.ExecutionMethod
	Execute(ctx context.Context, req core.ExecutionRequest, logf core.LogFunc) (*core.ExecutionResult, error)
}

// Options configures a Selector.
type Options struct {
	// Remote is the remote service client; nil disables the remote tier.
	Remote *remote.Client
	// ModelFactory builds provider models for the direct tier.
	ModelFactory provider.Factory
	// SampleRows caps the row sample sent to the model.
	SampleRows int
	// MaxPromptBytes caps the size of the data context sent to the model.
	MaxPromptBytes int
	// Tiers overrides the default tier chain (remote, direct, mock).
	Tiers   []Tier
	Logger  logging.Logger
	Metrics *metrics.Collector
}

// Selector tries tiers in order and never fails: the final mock tier always
// produces a result.
type Selector struct {
	tiers   []Tier
	mock    *MockTier
	logger  logging.Logger
	metrics *metrics.Collector
}

// New builds a Selector.
func New(optFns ...func(o *Options)) *Selector {
	opts := Options{
		ModelFactory:   provider.New,
		SampleRows:     DefaultSampleRows,
		MaxPromptBytes: DefaultMaxPromptKB * 1024,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	mock := NewMockTier()
	tiers := opts.Tiers
	if tiers == nil {
		tiers = []Tier{
			NewRemoteTier(opts.Remote),
			NewDirectTier(opts.ModelFactory, func(d *DirectTier) {
				d.SampleRows = opts.SampleRows
				d.MaxPromptBytes = opts.MaxPromptBytes
				d.Logger = logger
				d.Metrics = opts.Metrics
			}),
		}
	}
	return &Selector{tiers: tiers, mock: mock, logger: logger, metrics: opts.Metrics}
}

// Execute runs req through the tier chain and returns the first result.
// Once ctx is done no further tier is tried and an unsuccessful result is
// returned without falling back to the mock tier.
func (s *Selector) Execute(ctx context.Context, req core.ExecutionRequest, logf core.LogFunc) *core.ExecutionResult {
	for _, tier := range s.tiers {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		res, err := tier.Execute(ctx, req, logf)
		if err == nil && res != nil {
			s.metrics.TierAttempt(string(tier.Method()), true)
			logging.LogTierAttempt(s.logger, string(tier.Method()), time.Since(start), true, nil)
			return res
		}
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			err = &core.BackendUnavailableError{Tier: tier.Method(), Reason: "no result"}
		}
		s.metrics.TierAttempt(string(tier.Method()), false)
		logging.LogTierAttempt(s.logger, string(tier.Method()), time.Since(start), false, err)
		logf.Log(downgradeMessage(tier.Method(), err))
	}

	if err := ctx.Err(); err != nil {
		s.logger.Debug("Execution cancelled before a tier completed", "agent_id", req.Agent.ID, "error", err)
		return core.FailedResult("", "execution cancelled")
	}

	res, _ := s.mock.Execute(ctx, req, logf)
	s.metrics.TierAttempt(string(core.MethodMock), true)
	return res
}

func downgradeMessage(tier core.ExecutionMethod, err error) string {
	reason := err.Error()
	var bu *core.BackendUnavailableError
	if errors.As(err, &bu) {
		reason = bu.Reason
		if bu.Err != nil {
			reason += ": " + bu.Err.Error()
		}
	}
	next := "direct AI analysis"
	if tier != core.MethodRemote {
		next = "local analysis"
	}
	return tierLabel(tier) + " unavailable (" + reason + "), falling back to " + next
}

func tierLabel(m core.ExecutionMethod) string {
	switch m {
	case core.MethodRemote:
		return "Remote execution"
	case core.MethodDirect:
		return "Direct AI analysis"
	default:
		return string(m)
	}
}

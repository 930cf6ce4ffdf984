package backend

import (
	"context"
	"fmt"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/remote"
)

// RemoteTier delegates execution to the remote service.
type RemoteTier struct {
	client *remote.Client
}

// NewRemoteTier wraps client; a nil client makes the tier always downgrade.
func NewRemoteTier(client *remote.Client) *RemoteTier {
	return &RemoteTier{client: client}
}

// Method implements Tier.
func (t *RemoteTier) Method() core.ExecutionMethod { return core.MethodRemote }

// Execute implements Tier.
func (t *RemoteTier) Execute(ctx context.Context, req core.ExecutionRequest, logf core.LogFunc) (*core.ExecutionResult, error) {
	if t.client == nil {
		return nil, unavailable(core.MethodRemote, "not configured", nil)
	}

	logf.Log("Submitting analysis to remote execution service")
	id, err := t.client.Submit(ctx, remote.SubmitRequest{
		DataSourceID: req.DataSource.ID,
		Options: remote.Options{
			AgentID:       req.Agent.ID,
			AgentKind:     req.Agent.Kind,
			Configuration: req.Agent.Configuration,
			Provider:      req.Options.Provider,
			Model:         req.Options.Model,
			Temperature:   req.Options.Temperature,
			ExecutionMode: req.Options.ExecutionMode,
		},
	})
	if err != nil {
		return nil, unavailable(core.MethodRemote, "submission failed", err)
	}
	logf.Log(fmt.Sprintf("Remote execution %s accepted, waiting for results", id))

	maxAttempts := t.client.Config().MaxPollAttempts
	report, err := t.client.Await(ctx, id, func(attempt int, status remote.Status) {
		if status != remote.StatusCompleted {
			logf.Log(fmt.Sprintf("Remote execution %s (check %d/%d)", status, attempt, maxAttempts))
		}
	})
	if err != nil {
		return nil, unavailable(core.MethodRemote, "execution did not complete", err)
	}

	res := report.Result()
	res.Method = core.MethodRemote
	FinalizeResult(res, req.DataSource)
	logf.Log("Remote execution completed")
	return res, nil
}

func unavailable(tier core.ExecutionMethod, reason string, err error) error {
	return &core.BackendUnavailableError{Tier: tier, Reason: reason, Err: err}
}

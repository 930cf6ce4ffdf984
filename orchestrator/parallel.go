package orchestrator

import (
	"context"
	"errors"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/synthesis"
	"golang.org/x/sync/errgroup"
)

// runParallel executes all collaborators concurrently and waits for every
// one of them to settle. Any failure fails the batch; the first failure in
// declared order is reported.
func (b *batch) runParallel(ctx context.Context) ([]synthesis.Contribution, error) {
	b.log("Launching all collaborators in parallel")

	results := make([]synthesis.Contribution, len(b.collaborators))
	// a plain Group: one failure must not cancel the siblings
	var g errgroup.Group
	for i, collab := range b.collaborators {
		g.Go(func() error {
			results[i] = b.runOne(ctx, collab)
			if !results[i].Result.Success {
				return errors.New(results[i].Result.Error)
			}
			return nil
		})
	}
	if g.Wait() == nil {
		return results, nil
	}

	var (
		completed []synthesis.Contribution
		first     *BatchError
	)
	for _, part := range results {
		if part.Result.Success {
			completed = append(completed, part)
			continue
		}
		if first == nil {
			first = &BatchError{
				Mode:           core.ModeParallel,
				CollaboratorID: part.Agent.ID,
				Err:            errors.New(part.Result.Error),
			}
		}
	}
	first.Completed = completed
	return completed, first
}

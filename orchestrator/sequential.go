package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/synthesis"
)

// runSequential executes collaborators one after another in declared order.
// The first failure stops the batch; later collaborators are skipped.
func (b *batch) runSequential(ctx context.Context) ([]synthesis.Contribution, error) {
	parts := make([]synthesis.Contribution, 0, len(b.collaborators))
	for i, collab := range b.collaborators {
		b.log(fmt.Sprintf("Running collaborator %d/%d: %s", i+1, len(b.collaborators), collab.DisplayName()))

		part := b.runOne(ctx, collab)
		if !part.Result.Success {
			skipped := make([]string, 0, len(b.collaborators)-i-1)
			for _, rest := range b.collaborators[i+1:] {
				skipped = append(skipped, rest.ID)
			}
			return parts, &BatchError{
				Mode:           core.ModeSequential,
				CollaboratorID: collab.ID,
				Err:            errors.New(part.Result.Error),
				Completed:      parts,
				Skipped:        skipped,
			}
		}
		parts = append(parts, part)
	}
	return parts, nil
}

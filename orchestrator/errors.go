package orchestrator

import (
	"fmt"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/synthesis"
)

// BatchError reports a collaborator failure that failed the whole batch.
type BatchError struct {
	Mode           core.ExecutionMode
	CollaboratorID string
	Err            error
	// Completed holds the contributions that finished successfully.
	Completed []synthesis.Contribution
	// Skipped lists collaborators never started (sequential mode only).
	Skipped []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s collaborator %s failed: %v", e.Mode, e.CollaboratorID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

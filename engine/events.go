package engine

import (
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/progress"
)

// EventType discriminates streamed run events.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventLog           EventType = "log"
	EventCollaborators EventType = "collaborators"
	EventResult        EventType = "result"
)

// Event is one item of an Invoke stream. The final event of every stream is
// an EventResult.
type Event struct {
	RunID     string
	AgentID   string
	Type      EventType
	Timestamp time.Time

	Progress      *core.ProgressEvent
	Message       string
	Collaborators *progress.State
	Result        *core.ExecutionResult
	Err           error
}

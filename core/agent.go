package core

import (
	"fmt"
	"strconv"
	"strings"
)

// AgentKind enumerates the supported agent behaviors.
type AgentKind string

const (
	KindAnalyzer      AgentKind = "analyzer"
	KindVisualizer    AgentKind = "visualizer"
	KindSummarizer    AgentKind = "summarizer"
	KindCollaborative AgentKind = "collaborative"
	KindPipeline      AgentKind = "pipeline"
)

// Valid reports whether k is one of the known kinds.
func (k AgentKind) Valid() bool {
	switch k {
	case KindAnalyzer, KindVisualizer, KindSummarizer, KindCollaborative, KindPipeline:
		return true
	default:
		return false
	}
}

// IsComposite reports whether agents of this kind coordinate collaborators.
func (k AgentKind) IsComposite() bool {
	return k == KindCollaborative || k == KindPipeline
}

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusRunning   AgentStatus = "running"
	StatusCompleted AgentStatus = "completed"
	StatusError     AgentStatus = "error"
)

// IsTerminal reports whether the status ends a run.
func (s AgentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Terminal agents may be started again.
func (s AgentStatus) CanTransition(next AgentStatus) bool {
	switch s {
	case "", StatusIdle, StatusCompleted, StatusError:
		return next == StatusRunning || next == StatusIdle
	case StatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// ExecutionMode selects how collaborators of a composite agent are run.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// Recognized configuration keys.
const (
	ConfigExecutionMode     = "executionMode"
	ConfigSynthesizeResults = "synthesizeResults"
	ConfigMaxCollaborators  = "maxCollaborators"
)

// Agent describes a configured analysis task.
type Agent struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Kind            AgentKind      `json:"kind" yaml:"kind"`
	Capabilities    []string       `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Configuration   map[string]any `json:"configuration,omitempty" yaml:"configuration,omitempty"`
	CollaboratorIDs []string       `json:"collaboratorIds,omitempty" yaml:"collaboratorIds,omitempty"`
	Status          AgentStatus    `json:"status,omitempty" yaml:"-"`
}

// Validate checks the structural requirements of an agent record.
func (a *Agent) Validate() error {
	if a == nil || a.ID == "" {
		return NewConfigurationError(ErrAgentRequired, "agent id is empty")
	}
	if !a.Kind.Valid() {
		return NewConfigurationError(ErrAgentRequired, fmt.Sprintf("agent %s has unknown kind %q", a.ID, a.Kind))
	}
	return nil
}

// DisplayName returns the name, falling back to the id.
func (a *Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// IsComposite reports whether the agent should be run through the
// collaborative coordinator.
func (a *Agent) IsComposite() bool {
	return a.Kind.IsComposite() && len(a.Collaborators()) > 0
}

// Collaborators returns the declared collaborator ids in order, without
// blanks and duplicates.
func (a *Agent) Collaborators() []string {
	seen := make(map[string]bool, len(a.CollaboratorIDs))
	out := make([]string, 0, len(a.CollaboratorIDs))
	for _, id := range a.CollaboratorIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ExecutionMode returns the configured collaborator mode, defaulting to sequential.
func (a *Agent) ExecutionMode() ExecutionMode {
	if v, ok := a.Configuration[ConfigExecutionMode].(string); ok {
		if ExecutionMode(strings.ToLower(v)) == ModeParallel {
			return ModeParallel
		}
	}
	return ModeSequential
}

// SynthesizeResults returns the synthesizeResults flag (default true).
func (a *Agent) SynthesizeResults() bool {
	switch v := a.Configuration[ConfigSynthesizeResults].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return true
}

// MaxCollaborators returns the collaborator cap; zero means unlimited.
func (a *Agent) MaxCollaborators() int {
	switch v := a.Configuration[ConfigMaxCollaborators].(type) {
	case int:
		return max(v, 0)
	case int64:
		return max(int(v), 0)
	case float64:
		return max(int(v), 0)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return max(n, 0)
		}
	}
	return 0
}

// Clone returns a deep-enough copy for safe concurrent reads.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	c.CollaboratorIDs = append([]string(nil), a.CollaboratorIDs...)
	if a.Configuration != nil {
		c.Configuration = make(map[string]any, len(a.Configuration))
		for k, v := range a.Configuration {
			c.Configuration[k] = v
		}
	}
	return &c
}

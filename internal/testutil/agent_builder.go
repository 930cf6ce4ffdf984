package testutil

import (
	"github.com/hupe1980/insightmesh/core"
)

// AgentBuilder helps construct agents with fluent chaining for tests.
// Example:
//
//	team := NewAgentBuilder("team", core.KindCollaborative).Collaborators("a", "b").Parallel().Build()
type AgentBuilder struct {
	agent core.Agent
}

// NewAgentBuilder creates a builder for an agent with the given id and kind.
func NewAgentBuilder(id string, kind core.AgentKind) *AgentBuilder {
	return &AgentBuilder{agent: core.Agent{ID: id, Kind: kind}}
}

// Name sets the display name (chainable).
func (b *AgentBuilder) Name(name string) *AgentBuilder {
	b.agent.Name = name
	return b
}

// Collaborators appends collaborator ids (chainable).
func (b *AgentBuilder) Collaborators(ids ...string) *AgentBuilder {
	b.agent.CollaboratorIDs = append(b.agent.CollaboratorIDs, ids...)
	return b
}

// Config sets a configuration key (chainable).
func (b *AgentBuilder) Config(key string, val any) *AgentBuilder {
	if b.agent.Configuration == nil {
		b.agent.Configuration = map[string]any{}
	}
	b.agent.Configuration[key] = val
	return b
}

// Parallel selects the parallel execution mode (chainable).
func (b *AgentBuilder) Parallel() *AgentBuilder {
	return b.Config(core.ConfigExecutionMode, string(core.ModeParallel))
}

// Build returns a fresh *core.Agent.
func (b *AgentBuilder) Build() *core.Agent {
	return b.agent.Clone()
}

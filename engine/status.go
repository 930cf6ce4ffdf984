package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/insightmesh/core"
)

// ErrIllegalTransition is returned for lifecycle steps the status machine
// does not allow, such as starting an agent that is already running.
var ErrIllegalTransition = errors.New("illegal agent status transition")

// StatusListener observes status changes. Listeners run synchronously on the
// goroutine performing the transition.
type StatusListener func(agentID string, from, to core.AgentStatus)

// StatusBoard owns agent lifecycle status. Only the engine writes to it;
// everything else reads.
type StatusBoard struct {
	mu        sync.RWMutex
	statuses  map[string]core.AgentStatus
	listeners []StatusListener
}

// NewStatusBoard creates an empty board. Unknown agents read as idle.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{statuses: make(map[string]core.AgentStatus)}
}

// Status returns the current status of agentID.
func (b *StatusBoard) Status(agentID string) core.AgentStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.statuses[agentID]; ok {
		return s
	}
	return core.StatusIdle
}

// Subscribe registers l for all future transitions.
func (b *StatusBoard) Subscribe(l StatusListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Transition moves agentID to next.
func (b *StatusBoard) Transition(agentID string, next core.AgentStatus) error {
	b.mu.Lock()
	from, ok := b.statuses[agentID]
	if !ok {
		from = core.StatusIdle
	}
	if !from.CanTransition(next) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s for agent %s", ErrIllegalTransition, from, next, agentID)
	}
	b.statuses[agentID] = next
	listeners := append([]StatusListener(nil), b.listeners...)
	b.mu.Unlock()

	for _, l := range listeners {
		l(agentID, from, next)
	}
	return nil
}

// Forget drops the status of agentID.
func (b *StatusBoard) Forget(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.statuses, agentID)
}

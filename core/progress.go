package core

import (
	"sync"
	"time"
)

// ProgressEvent is delivered to progress sinks.
type ProgressEvent struct {
	Progress            int        `json:"progress"`
	Stage               string     `json:"stage"`
	EstimatedCompletion *time.Time `json:"estimatedCompletionTime,omitempty"`
}

// ProgressFunc receives progress events. Implementations must not block.
type ProgressFunc func(ProgressEvent)

// LogFunc receives user facing run messages. Implementations must not block.
type LogFunc func(message string)

// Emit calls f when non-nil.
func (f ProgressFunc) Emit(ev ProgressEvent) {
	if f != nil {
		f(ev)
	}
}

// Log calls f when non-nil.
func (f LogFunc) Log(msg string) {
	if f != nil {
		f(msg)
	}
}

// ExecutionProgress is the live record of one in-flight run. Progress never
// decreases and logs are append-only. Safe for concurrent use.
type ExecutionProgress struct {
	mu                  sync.RWMutex
	progress            int
	stage               string
	logs                []string
	startTime           time.Time
	estimatedCompletion *time.Time
}

// NewExecutionProgress starts a progress record at now.
func NewExecutionProgress(now time.Time) *ExecutionProgress {
	return &ExecutionProgress{startTime: now}
}

// Apply folds a progress event into the record. Values lower than the
// current progress are ignored; values are clamped to [0,100].
func (p *ExecutionProgress) Apply(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := min(max(ev.Progress, 0), 100)
	if v >= p.progress {
		p.progress = v
	}
	if ev.Stage != "" {
		p.stage = ev.Stage
	}
	if ev.EstimatedCompletion != nil {
		t := *ev.EstimatedCompletion
		p.estimatedCompletion = &t
	}
}

// AppendLog adds a message to the log sequence.
func (p *ExecutionProgress) AppendLog(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, msg)
}

// Snapshot is a read-only copy of an ExecutionProgress.
type Snapshot struct {
	Progress            int        `json:"progress"`
	Stage               string     `json:"stage"`
	Logs                []string   `json:"logs"`
	StartTime           time.Time  `json:"startTime"`
	EstimatedCompletion *time.Time `json:"estimatedCompletionTime,omitempty"`
}

// Snapshot returns a consistent copy of the record.
func (p *ExecutionProgress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Snapshot{
		Progress:  p.progress,
		Stage:     p.stage,
		Logs:      append([]string(nil), p.logs...),
		StartTime: p.startTime,
	}
	if p.estimatedCompletion != nil {
		t := *p.estimatedCompletion
		s.EstimatedCompletion = &t
	}
	return s
}

// LastLog returns the most recent log line or "".
func (p *ExecutionProgress) LastLog() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.logs) == 0 {
		return ""
	}
	return p.logs[len(p.logs)-1]
}

// CollaboratorStatus is the per-collaborator progress view kept by the
// coordinator.
type CollaboratorStatus struct {
	Progress            int        `json:"progress"`
	Stage               string     `json:"stage"`
	Completed           bool       `json:"completed"`
	EstimatedCompletion *time.Time `json:"estimatedCompletionTime,omitempty"`
}

package testutil

import (
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/insightmesh/core"
)

// Recorder captures progress events and log lines. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []core.ProgressEvent
	logs   []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Progress records a progress event; usable as a core.ProgressFunc.
func (r *Recorder) Progress(ev core.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Log records a log line; usable as a core.LogFunc.
func (r *Recorder) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

// Events returns a copy of the recorded progress events.
func (r *Recorder) Events() []core.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Logs returns a copy of the recorded log lines.
func (r *Recorder) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.logs)
}

// Contains reports whether any log line contains sub.
func (r *Recorder) Contains(sub string) bool {
	return slices.ContainsFunc(r.Logs(), func(l string) bool { return strings.Contains(l, sub) })
}

// Progresses returns the progress values in emission order.
func (r *Recorder) Progresses() []int {
	evs := r.Events()
	out := make([]int, len(evs))
	for i, ev := range evs {
		out[i] = ev.Progress
	}
	return out
}

// Package engine is the top-level entry point for running analysis agents.
//
// The Engine owns everything around a run that the execution core does not:
//
//   - Agent registry: thread-safe registration and lookup by id, also used
//     to resolve collaborator ids of composite agents
//   - Agent status: the only writer of the idle, running, completed and
//     error lifecycle, exposed read-only through Status
//   - Progress tracking: one live ExecutionProgress per agent
//   - Report persistence: successful runs are saved to a ReportStore
//   - Lifecycle callbacks, metrics and bounded concurrency
//
// Single agents run through a pipeline.Runner. Composite agents with
// collaborators run through an orchestrator.Coordinator; composite agents
// without any collaborators fall back to single-agent execution.
//
// Execute is synchronous. Invoke starts a run in the background and streams
// its events over a channel.
package engine

// Package orchestrator coordinates composite agents. A Coordinator fans a
// composite agent out into one stage pipeline run per collaborator, either
// sequentially in declared order or concurrently, tracks their progress
// through a progress.Aggregator, and merges the results with a
// synthesis.Synthesizer.
//
// Failure handling differs by mode. Sequential runs stop at the first failed
// collaborator and skip the rest. Parallel runs let every collaborator
// settle and then fail the whole batch if any one failed. In both cases the
// returned BatchError carries the contributions that did complete.
package orchestrator

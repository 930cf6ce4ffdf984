// Package core defines the shared data model of InsightMesh: agents, data
// sources, execution requests, live progress records, execution results and
// the persisted Report shape, together with the error taxonomy used across
// the orchestrator.
//
// Behavior lives in the other packages. core carries the types, small
// invariants such as monotonic progress and legal status transitions, and
// the conversion between results and reports.
package core

// Package pipeline drives a single agent through a fixed, weighted sequence
// of named stages.
//
// Visible progress follows a wall-clock pacing schedule independent of the
// real backend call. The backend starts once at the "Processing data" stage
// and the run resolves only after both the schedule and the backend have
// finished.
package pipeline

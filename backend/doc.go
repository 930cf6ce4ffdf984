// Package backend implements the execution backend selector: three tiers
// tried in order (remote service, direct AI-assisted call, deterministic
// mock), each returning a result or a downgrade signal. Downgrades are
// silent to the caller but reported on the run's log sink with a reason, so
// backend unavailability never fails a run.
package backend

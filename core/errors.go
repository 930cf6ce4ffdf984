package core

import (
	"errors"
	"fmt"
)

// Configuration error causes.
var (
	ErrAgentRequired         = errors.New("agent required")
	ErrDataSourceRequired    = errors.New("data source required")
	ErrCollaboratorsRequired = errors.New("collaborators required")
	ErrNestedComposite       = errors.New("nested composite collaborators are not supported")
	ErrUnknownAgent          = errors.New("unknown agent")
)

// ErrModelCallLimit is returned once a batch exhausted its AI call budget.
var ErrModelCallLimit = errors.New("model call limit exceeded")

// ConfigurationError reports a request that cannot run as configured. It is
// surfaced immediately and never retried.
type ConfigurationError struct {
	Cause  error
	Detail string
	// Missing lists collaborator ids that could not be resolved.
	Missing []string
}

// NewConfigurationError wraps cause with a human readable detail.
func NewConfigurationError(cause error, detail string) *ConfigurationError {
	return &ConfigurationError{Cause: cause, Detail: detail}
}

func (e *ConfigurationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("configuration error: %v", e.Cause)
	}
	return fmt.Sprintf("configuration error: %v: %s", e.Cause, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// BackendUnavailableError signals that an execution tier could not serve a
// run. The backend selector absorbs it by downgrading.
type BackendUnavailableError struct {
	Tier   ExecutionMethod
	Reason string
	Err    error
}

func (e *BackendUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s tier unavailable: %s: %v", e.Tier, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s tier unavailable: %s", e.Tier, e.Reason)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// SynthesisError reports a failed AI-assisted synthesis.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("synthesis failed: %v", e.Err) }

func (e *SynthesisError) Unwrap() error { return e.Err }

// FatalExecutionError is an unexpected failure of a run. It propagates to the
// caller and moves the owning agent to the error status.
type FatalExecutionError struct {
	AgentID string
	Err     error
}

func (e *FatalExecutionError) Error() string {
	if e.AgentID == "" {
		return fmt.Sprintf("execution failed: %v", e.Err)
	}
	return fmt.Sprintf("execution of agent %s failed: %v", e.AgentID, e.Err)
}

func (e *FatalExecutionError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

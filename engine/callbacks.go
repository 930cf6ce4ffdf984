package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/insightmesh/core"
)

// CallbackType defines the lifecycle points where callbacks run.
type CallbackType string

const (
	// CallbackBeforeRun is triggered after validation and before the agent
	// starts. An error aborts the run.
	CallbackBeforeRun CallbackType = "before_run"

	// CallbackAfterRun is triggered after a successful run.
	CallbackAfterRun CallbackType = "after_run"

	// CallbackOnError is triggered when a run fails.
	CallbackOnError CallbackType = "on_error"

	// CallbackOnStatusChange is triggered on every agent status transition.
	CallbackOnStatusChange CallbackType = "on_status_change"
)

// CallbackContext carries the information available at a lifecycle point.
// Fields not meaningful for a callback type are zero.
type CallbackContext struct {
	RunID        string
	AgentID      string
	Request      *core.ExecutionRequest
	Result       *core.ExecutionResult
	Err          error
	From, To     core.AgentStatus
	CallbackType CallbackType
	Metadata     map[string]any
}

// Callback is a lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks per type and runs them in registration
// order. Safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback of callbackType, stopping at the
// first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute formats the event and passes it to the logger.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	msg := fmt.Sprintf("[%s] agent=%s run=%s", c.callbackType, callbackCtx.AgentID, callbackCtx.RunID)
	switch {
	case callbackCtx.To != "":
		msg += fmt.Sprintf(" status=%s->%s", callbackCtx.From, callbackCtx.To)
	case callbackCtx.Err != nil:
		msg += fmt.Sprintf(" error=%v", callbackCtx.Err)
	case callbackCtx.Result != nil:
		msg += fmt.Sprintf(" method=%s insights=%d", callbackCtx.Result.Method, len(callbackCtx.Result.Insights))
	}
	c.logger(msg)
	return nil
}

// RequestValidationCallback rejects runs whose request fails a custom check.
// It runs at CallbackBeforeRun.
type RequestValidationCallback struct {
	validator func(req core.ExecutionRequest) error
}

// NewRequestValidationCallback creates a validation callback.
func NewRequestValidationCallback(validator func(req core.ExecutionRequest) error) *RequestValidationCallback {
	return &RequestValidationCallback{validator: validator}
}

// Type returns CallbackBeforeRun.
func (c *RequestValidationCallback) Type() CallbackType {
	return CallbackBeforeRun
}

// Execute validates the request carried by callbackCtx.
func (c *RequestValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil || callbackCtx.Request == nil {
		return nil
	}
	if err := c.validator(*callbackCtx.Request); err != nil {
		return core.NewConfigurationError(err, "request rejected by validation callback")
	}
	return nil
}

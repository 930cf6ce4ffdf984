package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for runs, executions and reports.
func NewID() string { return uuid.NewString() }

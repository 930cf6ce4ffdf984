package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrEmptyResponse is returned when a provider completes without text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Request captures the normalized model input.
type Request struct {
	// Instructions is the system prompt.
	Instructions string `json:"instructions"`
	// Prompt is the user message.
	Prompt string `json:"prompt"`
	// Temperature overrides the adapter default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final completion emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Model is the minimal interface required to drive generation. Generate
// emits at most one Response and closes both channels when done.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drains Generate and returns the response text.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)
	var (
		resp Response
		got  bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			resp, got = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}
	if !got || strings.TrimSpace(resp.Text) == "" {
		return Response{}, ErrEmptyResponse
	}
	return resp, nil
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
type MockModel struct {
	info Info

	mu       sync.Mutex
	reply    func(Request) (string, error)
	requests []Request
}

// NewMockModel constructs a MockModel answering every request with reply.
func NewMockModel(reply string) *MockModel {
	return NewMockModelFunc(func(Request) (string, error) { return reply, nil })
}

// NewMockModelFunc constructs a MockModel driven by fn.
func NewMockModelFunc(fn func(Request) (string, error)) *MockModel {
	return &MockModel{info: Info{Name: "mock", Provider: "mock"}, reply: fn}
}

// NewFailingMockModel constructs a MockModel that always returns err.
func NewFailingMockModel(err error) *MockModel {
	return NewMockModelFunc(func(Request) (string, error) { return "", err })
}

// Requests returns a copy of every request received.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.reply
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		text, err := fn(req)
		if err != nil {
			errCh <- fmt.Errorf("mock model: %w", err)
			return
		}
		respCh <- Response{Text: text, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

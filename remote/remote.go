// Package remote is the HTTP client for the remote execution service. It
// implements the minimal wire contract: submit an execution, poll its status
// on a fixed interval up to a retry ceiling, then fetch the generated report.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/insightmesh/core"
)

var (
	// ErrNotConfigured is returned when no base URL is set.
	ErrNotConfigured = errors.New("remote execution endpoint not configured")
	// ErrRejected is returned when the service declines a submission.
	ErrRejected = errors.New("remote execution rejected")
	// ErrExecutionFailed is returned when polling observes the error status.
	ErrExecutionFailed = errors.New("remote execution failed")
	// ErrPollTimeout is returned when the retry ceiling is exhausted.
	ErrPollTimeout = errors.New("remote execution timed out")
)

// Status is the remote execution state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Options are the execution options sent with a submission. API keys are
// never forwarded.
type Options struct {
	AgentID       string             `json:"agentId"`
	AgentKind     core.AgentKind     `json:"agentType"`
	Configuration map[string]any     `json:"configuration,omitempty"`
	Provider      string             `json:"provider,omitempty"`
	Model         string             `json:"model,omitempty"`
	Temperature   float64            `json:"temperature,omitempty"`
	ExecutionMode core.ExecutionMode `json:"executionMode,omitempty"`
}

// SubmitRequest is the body of an execution submission.
type SubmitRequest struct {
	DataSourceID string  `json:"dataSourceId"`
	Options      Options `json:"options"`
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"executionId"`
	Error       string `json:"error,omitempty"`
}

// StatusResponse describes a polled execution.
type StatusResponse struct {
	Status  Status          `json:"status"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Config configures the client.
type Config struct {
	BaseURL         string
	PollInterval    time.Duration
	MaxPollAttempts int
	HTTPClient      *http.Client
}

// DefaultConfig mirrors the service's documented pacing: a two second poll
// interval and thirty attempts.
var DefaultConfig = Config{
	PollInterval:    2 * time.Second,
	MaxPollAttempts: 30,
}

// Client talks to the remote execution service. Safe for concurrent use.
type Client struct {
	base *url.URL
	cfg  Config
	http *http.Client
}

// NewClient builds a client. An empty BaseURL yields ErrNotConfigured.
func NewClient(optFns ...func(c *Config)) (*Client, error) {
	cfg := DefaultConfig
	for _, fn := range optFns {
		fn(&cfg)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultConfig.MaxPollAttempts
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: base, cfg: cfg, http: hc}, nil
}

// Config returns the effective client configuration.
func (c *Client) Config() Config { return c.cfg }

// Submit posts an execution and returns its id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/executions", req, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.ExecutionID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrRejected, resp.Error)
		}
		return "", ErrRejected
	}
	return resp.ExecutionID, nil
}

// Status fetches the current execution status.
func (c *Client) Status(ctx context.Context, executionID string) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, &resp)
	return resp, err
}

// Report fetches the report generated by an execution.
func (c *Client) Report(ctx context.Context, executionID string) (core.Report, error) {
	var r core.Report
	err := c.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID)+"/report", nil, &r)
	return r, err
}

// Await polls until the execution completes, fails, or the retry ceiling is
// reached. onPoll, when non-nil, observes every poll.
func (c *Client) Await(ctx context.Context, executionID string, onPoll func(attempt int, status Status)) (core.Report, error) {
	limit := rate.Inf
	if c.cfg.PollInterval > 0 {
		limit = rate.Every(c.cfg.PollInterval)
	}
	limiter := rate.NewLimiter(limit, 1)
	// the first poll waits one full interval
	limiter.Reserve()

	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return core.Report{}, err
		}
		st, err := c.Status(ctx, executionID)
		if err != nil {
			return core.Report{}, err
		}
		if onPoll != nil {
			onPoll(attempt, st.Status)
		}
		switch st.Status {
		case StatusCompleted:
			return c.Report(ctx, executionID)
		case StatusError:
			if st.Error != "" {
				return core.Report{}, fmt.Errorf("%w: %s", ErrExecutionFailed, st.Error)
			}
			return core.Report{}, ErrExecutionFailed
		}
	}
	return core.Report{}, fmt.Errorf("%w after %d attempts", ErrPollTimeout, c.cfg.MaxPollAttempts)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// HTTPError is a non-2xx response from the service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("remote service returned %d: %s", e.StatusCode, e.Body)
}

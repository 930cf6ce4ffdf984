package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/insightmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	polls      atomic.Int32
	completeAt int32
	failWith   string
	reject     bool
	submitted  SubmitRequest
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /executions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.submitted))
		if f.reject {
			_ = json.NewEncoder(w).Encode(SubmitResponse{Success: false, Error: "busy"})
			return
		}
		_ = json.NewEncoder(w).Encode(SubmitResponse{Success: true, ExecutionID: "exec-1"})
	})
	mux.HandleFunc("GET /executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		switch {
		case f.failWith != "":
			_ = json.NewEncoder(w).Encode(StatusResponse{Status: StatusError, Error: f.failWith})
		case f.completeAt > 0 && n >= f.completeAt:
			_ = json.NewEncoder(w).Encode(StatusResponse{Status: StatusCompleted})
		default:
			_ = json.NewEncoder(w).Encode(StatusResponse{Status: StatusPending})
		}
	})
	mux.HandleFunc("GET /executions/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(core.Report{
			ID:              r.PathValue("id"),
			Summary:         "remote summary",
			Insights:        []string{"remote insight"},
			ExecutionMethod: core.MethodRemote,
		})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeService, attempts int) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := NewClient(func(c *Config) {
		c.BaseURL = srv.URL + "/"
		c.PollInterval = 0
		c.MaxPollAttempts = attempts
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_SubmitAndAwait(t *testing.T) {
	f := &fakeService{completeAt: 3}
	c := newTestClient(t, f, 5)

	id, err := c.Submit(context.Background(), SubmitRequest{
		DataSourceID: "sales",
		Options:      Options{AgentID: "a1", AgentKind: core.KindAnalyzer},
	})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)
	assert.Equal(t, "sales", f.submitted.DataSourceID)

	var seen []Status
	r, err := c.Await(context.Background(), id, func(_ int, s Status) { seen = append(seen, s) })
	require.NoError(t, err)
	assert.Equal(t, "remote summary", r.Summary)
	assert.Equal(t, []Status{StatusPending, StatusPending, StatusCompleted}, seen)
}

func TestClient_SubmitRejected(t *testing.T) {
	c := newTestClient(t, &fakeService{reject: true}, 1)
	_, err := c.Submit(context.Background(), SubmitRequest{DataSourceID: "x"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "busy")
}

func TestClient_AwaitTimeout(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f, 4)
	_, err := c.Await(context.Background(), "exec-1", nil)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, int32(4), f.polls.Load())
}

func TestClient_AwaitRemoteError(t *testing.T) {
	c := newTestClient(t, &fakeService{failWith: "worker crashed"}, 4)
	_, err := c.Await(context.Background(), "exec-1", nil)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.Contains(t, err.Error(), "worker crashed")
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(func(c *Config) { c.BaseURL = srv.URL })
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), SubmitRequest{})
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusServiceUnavailable, herr.StatusCode)
	assert.Equal(t, "nope", herr.Body)
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(func(c *Config) { c.BaseURL = url })
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), SubmitRequest{})
	assert.Error(t, err)
}

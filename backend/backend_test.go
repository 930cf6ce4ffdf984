package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/model/provider"
	"github.com/hupe1980/insightmesh/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *logRecorder) fn() core.LogFunc {
	return func(msg string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.lines = append(l.lines, msg)
	}
}

func (l *logRecorder) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func salesRequest(apiKey string) core.ExecutionRequest {
	return core.ExecutionRequest{
		Agent: &core.Agent{ID: "a1", Name: "Sales Analyzer", Kind: core.KindAnalyzer},
		DataSource: core.NewDataSource("sales", "Sales", []string{"region", "revenue"}, []core.Row{
			{"region": "North", "revenue": 100},
			{"region": "South", "revenue": 300},
			{"region": "North", "revenue": 200},
		}),
		Options: core.ExecutionOptions{Provider: "openai", APIKey: apiKey},
	}
}

func deadRemote(t *testing.T) *remote.Client {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c, err := remote.NewClient(func(c *remote.Config) { c.BaseURL = url })
	require.NoError(t, err)
	return c
}

const structuredReply = `{"summary":"Revenue is concentrated in the South.","insights":["South leads revenue"],"visualizations":[{"type":"bar","title":"Revenue by region","data":[{"region":"North","revenue":150},{"region":"South","revenue":300}]}]}`

func TestSelector_RemoteNetworkFailureFallsBackToDirect(t *testing.T) {
	logs := &logRecorder{}
	s := New(func(o *Options) {
		o.Remote = deadRemote(t)
		o.ModelFactory = provider.Static(model.NewMockModel(structuredReply))
	})

	res := s.Execute(context.Background(), salesRequest("sk-test"), logs.fn())
	require.True(t, res.Success)
	assert.Equal(t, core.MethodDirect, res.Method)
	assert.Equal(t, "Revenue is concentrated in the South.", res.Summary)
	assert.True(t, logs.contains("Remote execution unavailable (submission failed"))
}

func TestSelector_RemoteFailureWithoutKeyFallsBackToMock(t *testing.T) {
	logs := &logRecorder{}
	s := New(func(o *Options) { o.Remote = deadRemote(t) })

	res := s.Execute(context.Background(), salesRequest(""), logs.fn())
	require.True(t, res.Success)
	assert.Equal(t, core.MethodMock, res.Method)
	assert.True(t, logs.contains("no API key configured"))
}

func TestSelector_DirectFailureFallsBackToMock(t *testing.T) {
	logs := &logRecorder{}
	s := New(func(o *Options) {
		o.ModelFactory = provider.Static(model.NewFailingMockModel(errors.New("503 from provider")))
	})

	res := s.Execute(context.Background(), salesRequest("sk-test"), logs.fn())
	assert.Equal(t, core.MethodMock, res.Method)
	assert.True(t, logs.contains("503 from provider"))
	assert.True(t, logs.contains("falling back to local analysis"))
}

func TestSelector_RemoteSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /executions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"executionId":"e1"}`))
	})
	mux.HandleFunc("GET /executions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	})
	mux.HandleFunc("GET /executions/{id}/report", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"r1","summary":"from remote","insights":["x"],"visualizations":[],"statistics":{}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := remote.NewClient(func(c *remote.Config) { c.BaseURL = srv.URL; c.PollInterval = 0 })
	require.NoError(t, err)

	res := New(func(o *Options) { o.Remote = client }).Execute(context.Background(), salesRequest(""), nil)
	assert.Equal(t, core.MethodRemote, res.Method)
	assert.Equal(t, "from remote", res.Summary)
	assert.NotEmpty(t, res.Statistics, "missing statistics are computed locally")
}

func TestSelector_ModelCallBudget(t *testing.T) {
	mock := model.NewMockModel(structuredReply)
	s := New(func(o *Options) { o.ModelFactory = provider.Static(mock) })

	req := salesRequest("sk-test")
	req.Limiter = core.NewModelLimiter(1)

	assert.Equal(t, core.MethodDirect, s.Execute(context.Background(), req, nil).Method)
	assert.Equal(t, core.MethodMock, s.Execute(context.Background(), req, nil).Method)
	assert.Len(t, mock.Requests(), 1)
}

func TestSelector_CustomTiers(t *testing.T) {
	s := New(func(o *Options) { o.Tiers = []Tier{} })
	res := s.Execute(context.Background(), salesRequest("sk"), nil)
	assert.Equal(t, core.MethodMock, res.Method)
}

type cancellingTier struct{ cancel context.CancelFunc }

func (c cancellingTier) Method() core.ExecutionMethod { return core.MethodRemote }

func (c cancellingTier) Execute(ctx context.Context, _ core.ExecutionRequest, _ core.LogFunc) (*core.ExecutionResult, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestSelector_CancelledStopsWithoutMockFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(func(o *Options) { o.Tiers = []Tier{cancellingTier{cancel: cancel}} })

	logs := &logRecorder{}
	res := s.Execute(ctx, salesRequest(""), logs.fn())
	assert.False(t, res.Success)
	assert.Equal(t, "execution cancelled", res.Error)
	assert.Empty(t, logs.lines)
}

func TestDirectTier_SendsKindSpecificPrompt(t *testing.T) {
	mock := model.NewMockModel(structuredReply)
	tier := NewDirectTier(provider.Static(mock))

	req := salesRequest("sk-test")
	req.Agent.Kind = core.KindVisualizer
	req.Options.Temperature = 0.2

	_, err := tier.Execute(context.Background(), req, nil)
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "visualization specialist")
	assert.Contains(t, reqs[0].Prompt, "Dataset: Sales")
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, 0.2, *reqs[0].Temperature)
}

func TestMockTier_ZeroNumericColumns(t *testing.T) {
	req := salesRequest("")
	req.DataSource = core.NewDataSource("names", "Names", []string{"name"}, []core.Row{{"name": "a"}, {"name": "b"}, {"name": "a"}})

	res, err := NewMockTier().Execute(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotNil(t, res.Statistics)
	assert.Empty(t, res.Statistics)
	require.Len(t, res.Visualizations, 1)
	assert.Equal(t, core.ChartPie, res.Visualizations[0].Kind)
}

func TestMockTier_BarAndPie(t *testing.T) {
	res, err := NewMockTier().Execute(context.Background(), salesRequest(""), nil)
	require.NoError(t, err)
	require.Len(t, res.Visualizations, 2)
	assert.Equal(t, core.ChartBar, res.Visualizations[0].Kind)
	assert.Equal(t, core.ChartPie, res.Visualizations[1].Kind)
	assert.Equal(t, 200.0, res.Statistics["revenue"].Mean)
	assert.Contains(t, res.Summary, "Sales")
	assert.NotEmpty(t, res.Insights)
}

func TestMockTier_EmptySource(t *testing.T) {
	req := salesRequest("")
	req.DataSource = core.NewDataSource("empty", "Empty", nil, nil)
	res, err := NewMockTier().Execute(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Visualizations)
}

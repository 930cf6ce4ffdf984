package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/config"
	"github.com/hupe1980/insightmesh/core"
)

const testCatalog = `
agents:
  - {id: an, name: Analyst, kind: analyzer}
  - {id: viz, kind: visualizer}
  - {id: team, kind: collaborative, collaboratorIds: [an, viz]}
dataSources:
  - id: sales
    name: Sales
    rows:
      - {region: North, revenue: 10}
      - {region: South, revenue: 30}
`

func newApp(t *testing.T) (*appContext, string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	cfg := config.New()
	cfg.Pacing.Scale = 0
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.Path = filepath.Join(dir, "reports.db")
	cfg.Provider.APIKeyEnv = "INSIGHTMESH_TEST_UNSET_KEY"
	cfg.Log.Level = "error"

	out := &bytes.Buffer{}
	return &appContext{ctx: context.Background(), cfg: cfg, stdout: out, stderr: &bytes.Buffer{}}, path, out
}

func TestRunCmd_AndReports(t *testing.T) {
	app, catalogPath, out := newApp(t)

	cmd := &RunCmd{Catalog: catalogPath, Agent: "team", DataSource: "sales", Mode: "parallel", JSON: true}
	require.NoError(t, cmd.Run(app))

	var res core.ExecutionResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, core.MethodCollaborative, res.Method)
	assert.Contains(t, app.stderr.(*bytes.Buffer).String(), "Starting parallel execution of 2 collaborators")

	out.Reset()
	require.NoError(t, (&ReportsListCmd{}).Run(app))
	assert.Contains(t, out.String(), "team / Sales")
}

func TestRunCmd_UnknownDataSource(t *testing.T) {
	app, catalogPath, _ := newApp(t)
	err := (&RunCmd{Catalog: catalogPath, Agent: "an", DataSource: "nope"}).Run(app)
	assert.ErrorContains(t, err, `data source "nope" not found`)
}

func TestAgentsCmd(t *testing.T) {
	app, catalogPath, out := newApp(t)
	require.NoError(t, (&AgentsCmd{Catalog: catalogPath}).Run(app))
	assert.Contains(t, out.String(), "Analyst")
	assert.Contains(t, out.String(), "an,viz")
}

func TestReports_RequireSQLite(t *testing.T) {
	app, _, _ := newApp(t)
	app.cfg.Storage.Driver = config.StorageMemory
	assert.Error(t, (&ReportsListCmd{}).Run(app))
}

func TestServeMetrics(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "insightmesh_active_runs 0\n")
	})
	addr, stop, err := serveMetrics("127.0.0.1:0", handler)
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "insightmesh_active_runs 0\n", string(body))
}

func TestRunCmd_ServesMetricsWhileRunning(t *testing.T) {
	app, catalogPath, _ := newApp(t)
	app.cfg.Metrics.Listen = "127.0.0.1:0"
	require.NoError(t, (&RunCmd{Catalog: catalogPath, Agent: "an", DataSource: "sales", Quiet: true}).Run(app))
}

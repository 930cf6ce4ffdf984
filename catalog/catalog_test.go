package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/core"
)

const sampleYAML = `
agents:
  - id: analyst
    name: Revenue Analyst
    kind: analyzer
  - id: charts
    kind: visualizer
  - id: team
    name: Team
    kind: collaborative
    collaboratorIds: [analyst, charts]
    configuration:
      executionMode: parallel
      maxCollaborators: 2
dataSources:
  - id: sales
    name: Sales
    rows:
      - {region: North, revenue: 100}
      - {region: South, revenue: 250.5}
`

type registry struct{ ids []string }

func (r *registry) Register(a *core.Agent) error {
	r.ids = append(r.ids, a.ID)
	return nil
}

func TestLoadBytes_YAML(t *testing.T) {
	c, err := LoadBytes([]byte(sampleYAML), "yaml")
	require.NoError(t, err)
	require.Len(t, c.Agents, 3)

	team, ok := c.Agent("team")
	require.True(t, ok)
	assert.True(t, team.IsComposite())
	assert.Equal(t, core.ModeParallel, team.ExecutionMode())
	assert.Equal(t, 2, team.MaxCollaborators())

	ds, ok := c.DataSource("sales")
	require.True(t, ok)
	assert.Equal(t, []string{"region", "revenue"}, ds.Columns)
	assert.Equal(t, 2, ds.Metadata.RowCount)
	assert.Equal(t, 100, ds.Rows[0]["revenue"])

	_, ok = c.DataSource("missing")
	assert.False(t, ok)

	r := &registry{}
	require.NoError(t, c.RegisterAll(r))
	assert.Equal(t, []string{"analyst", "charts", "team"}, r.ids)
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agents":[{"id":"a","kind":"summarizer"}],"dataSources":[{"id":"d","name":"D","rows":[{"x":1}]}]}`), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, core.KindSummarizer, c.Agents[0].Kind)
	assert.Equal(t, []string{"x"}, c.DataSources[0].Columns)

	_, err = LoadFile(filepath.Join(t.TempDir(), "catalog.txt"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown kind", "agents:\n  - {id: a, kind: oracle}\n"},
		{"duplicate agent", "agents:\n  - {id: a, kind: analyzer}\n  - {id: a, kind: visualizer}\n"},
		{"unknown collaborator", "agents:\n  - {id: t, kind: pipeline, collaboratorIds: [ghost]}\n"},
		{"data source without id", "dataSources:\n  - {name: X}\n"},
		{"bad execution mode", "agents:\n  - {id: t, kind: pipeline, configuration: {executionMode: random}}\n"},
		{"non-integer cap", "agents:\n  - {id: t, kind: pipeline, configuration: {maxCollaborators: many}}\n"},
		{"duplicate data source", "dataSources:\n  - {id: d}\n  - {id: d}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml), "yaml")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

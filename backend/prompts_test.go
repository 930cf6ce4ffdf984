package backend

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hupe1980/insightmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemPrompt_DistinctPerKind(t *testing.T) {
	seen := map[string]core.AgentKind{}
	for _, kind := range []core.AgentKind{core.KindAnalyzer, core.KindVisualizer, core.KindSummarizer} {
		p, err := SystemPrompt(&core.Agent{ID: "x", Name: "Bot", Kind: kind, Capabilities: []string{"trends"}})
		require.NoError(t, err)
		assert.Contains(t, p, "You are Bot")
		assert.Contains(t, p, "Focus areas: trends.")
		assert.Contains(t, p, `"visualizations"`)
		_, dup := seen[p]
		assert.False(t, dup, "prompt for %s duplicates another kind", kind)
		seen[p] = kind
	}

	composite, err := SystemPrompt(&core.Agent{ID: "x", Name: "Team", Kind: core.KindCollaborative})
	require.NoError(t, err)
	assert.Contains(t, composite, "data analyst")
}

func TestBuildContext_Bounded(t *testing.T) {
	rows := make([]core.Row, 200)
	for i := range rows {
		rows[i] = core.Row{"id": i, "label": fmt.Sprintf("item-%d", i)}
	}
	ds := core.NewDataSource("big", "Big", []string{"id", "label"}, rows)

	ctx := BuildContext(ds, 10, 0)
	assert.Contains(t, ctx, "Rows: 200, Columns: 2")
	assert.Contains(t, ctx, "- id (numeric)")
	assert.Contains(t, ctx, "- label (categorical)")
	assert.Contains(t, ctx, "first 10 of 200 rows")
	assert.Equal(t, 10, strings.Count(ctx, `"label":`))

	small := BuildContext(ds, 200, 600)
	assert.LessOrEqual(t, len(small), 600)
	assert.True(t, strings.HasSuffix(small, "... (truncated)\n"))
}

func TestBuildContext_WideSourceStaysBounded(t *testing.T) {
	columns := make([]string, 500)
	row := core.Row{}
	for i := range columns {
		columns[i] = fmt.Sprintf("measurement_column_%03d", i)
		row[columns[i]] = float64(i)
	}
	ds := core.NewDataSource("wide", "Wide", columns, []core.Row{row, row})

	ctx := BuildContext(ds, 10, 1024)
	assert.LessOrEqual(t, len(ctx), 1024)
	assert.Contains(t, ctx, "Rows: 2, Columns: 500")
	assert.True(t, strings.HasSuffix(ctx, "... (truncated)\n"))
	assert.NotContains(t, ctx, "Sample (first")
}

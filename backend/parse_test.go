package backend

import (
	"testing"

	"github.com/hupe1980/insightmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_Structured(t *testing.T) {
	p := ParseResponse(structuredReply)
	s, ok := p.(Structured)
	require.True(t, ok)
	assert.Equal(t, Strings{"South leads revenue"}, s.Payload.Insights)
}

func TestParseResponse_Fenced(t *testing.T) {
	p := ParseResponse("Sure!\n```json\n{\"summary\":\"fenced\",\"insights\":[{\"text\":\"obj insight\"},\"plain\"]}\n```")
	s, ok := p.(Structured)
	require.True(t, ok)
	assert.Equal(t, "fenced", s.Payload.Summary)
	assert.Equal(t, Strings{"obj insight", "plain"}, s.Payload.Insights)
}

func TestParseResponse_Raw(t *testing.T) {
	p := ParseResponse("  The data looks fine.  ")
	assert.Equal(t, Raw{Text: "The data looks fine."}, p)

	// an object that carries none of the expected fields is not structured
	_, ok := ParseResponse(`{"foo":1}`).(Raw)
	assert.True(t, ok)
}

func TestExtractTables(t *testing.T) {
	text := `Overview of sales.

## Revenue by Region

| Region | Notes | Revenue |
|:-------|-------|--------:|
| North  | good  | $1,200  |
| **South** | ok | 800 |

Trailing text.

| A | B |
|---|---|
| x | y |
`
	charts := ExtractTables(text)
	require.Len(t, charts, 1, "tables without numeric columns are skipped")
	v := charts[0]
	assert.Equal(t, "Revenue by Region", v.Title)
	assert.Equal(t, core.ChartBar, v.Kind)
	assert.Equal(t, "Region", v.Config.XKey)
	assert.Equal(t, "Revenue", v.Config.YKey)
	assert.Equal(t, []core.Row{
		{"Region": "North", "Revenue": 1200.0},
		{"Region": "South", "Revenue": 800.0},
	}, v.Rows)
}

func TestNormalize_RawUsesTablesAndSummary(t *testing.T) {
	ds := salesRequest("").DataSource
	res := Normalize(Raw{Text: "| k | v |\n|---|---|\n| a | 1 |"}, ds, core.MethodDirect)
	assert.True(t, res.Success)
	assert.Equal(t, core.MethodDirect, res.Method)
	require.Len(t, res.Visualizations, 1)
	assert.Equal(t, "Table 1", res.Visualizations[0].Title)
	assert.NotNil(t, res.Insights)
}

func TestNormalize_DefaultsAxisKeysAndSeries(t *testing.T) {
	ds := salesRequest("").DataSource
	p := Structured{Payload: Payload{
		Summary: "s",
		Visualizations: []PayloadVisualization{
			{Kind: "LINE", Rows: []core.Row{{"revenue": 1.0, "region": "North"}}},
			{Type: "pie", Title: "empty"},
		},
	}}
	res := Normalize(p, ds, core.MethodDirect)
	require.Len(t, res.Visualizations, 1, "charts without rows are dropped")
	v := res.Visualizations[0]
	assert.Equal(t, core.ChartLine, v.Kind)
	assert.Equal(t, "Chart 1", v.Title)
	assert.Equal(t, "region", v.Config.XKey)
	assert.Equal(t, "revenue", v.Config.YKey)
	require.Len(t, v.Config.Series, 1)
	assert.Equal(t, "revenue", v.Config.Series[0].DataKey)
}

func TestNormalize_AutoChartWhenNoneProduced(t *testing.T) {
	ds := salesRequest("").DataSource
	res := Normalize(Structured{Payload: Payload{Summary: "only text"}}, ds, core.MethodDirect)
	require.Len(t, res.Visualizations, 1)
	assert.Equal(t, "Average revenue by region", res.Visualizations[0].Title)
	assert.Contains(t, res.Statistics, "revenue")
}

func TestNormalize_ConfigFromPayload(t *testing.T) {
	ds := salesRequest("").DataSource
	p := Structured{Payload: Payload{Visualizations: []PayloadVisualization{{
		Type:   "bar",
		Title:  "t",
		Data:   []core.Row{{"a": "x", "b": 1.0, "c": 2.0}},
		Config: map[string]any{"xKey": "a", "yKey": "c", "series": []any{map[string]any{"dataKey": "c", "name": "C"}}},
	}}}}
	res := Normalize(p, ds, core.MethodDirect)
	v := res.Visualizations[0]
	assert.Equal(t, "c", v.Config.YKey)
	assert.Equal(t, []core.Series{{DataKey: "c", Name: "C"}}, v.Config.Series)
}

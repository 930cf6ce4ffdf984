package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/util"
	"github.com/hupe1980/insightmesh/stats"
)

// Payload bounds for the direct tier context.
const (
	DefaultSampleRows  = 50
	DefaultMaxPromptKB = 48
)

const responseContract = `Respond with a single JSON object and nothing else, using this shape:
{
  "summary": "markdown summary",
  "insights": ["insight", "..."],
  "visualizations": [
    {"type": "bar|line|pie|scatter|area", "title": "...", "data": [{"key": "value"}], "config": {"xKey": "...", "yKey": "..."}}
  ],
  "statistics": {"column": {"mean": 0, "median": 0, "min": 0, "max": 0, "count": 0}}
}`

var systemTemplates = map[core.AgentKind]string{
	core.KindAnalyzer: `You are {{.Name}}, a meticulous data analyst.
Examine the dataset for distributions, correlations, outliers and trends.
Quantify every claim with numbers from the data and call out data quality issues.
{{- if .Capabilities}}
Focus areas: {{join ", " .Capabilities}}.
{{- end}}
` + responseContract,

	core.KindVisualizer: `You are {{.Name}}, a data visualization specialist.
Choose between two and four charts that best reveal the structure of the dataset.
Every visualization must carry chart-ready rows in "data" and name its axes in "config".
Keep the summary short and describe what each chart shows.
{{- if .Capabilities}}
Focus areas: {{join ", " .Capabilities}}.
{{- end}}
` + responseContract,

	core.KindSummarizer: `You are {{.Name}}, an executive report writer.
Produce a concise, well-structured markdown summary of the dataset for a non-technical audience.
Lead with the three most important findings, then supporting detail.
Visualizations are optional; include at most one.
{{- if .Capabilities}}
Focus areas: {{join ", " .Capabilities}}.
{{- end}}
` + responseContract,
}

// SystemPrompt returns the instruction set for an agent. Kinds without a
// dedicated template use the analyzer instructions.
func SystemPrompt(agent *core.Agent) (string, error) {
	tmpl, ok := systemTemplates[agent.Kind]
	if !ok {
		tmpl = systemTemplates[core.KindAnalyzer]
	}
	return util.RenderTemplate(tmpl, map[string]any{
		"Name":         agent.DisplayName(),
		"Capabilities": agent.Capabilities,
	})
}

// BuildContext renders a textual view of the data source bounded by
// maxBytes: a schema header, precomputed statistics and a capped row sample.
// Whatever does not fit is replaced by a truncation marker.
func BuildContext(ds *core.DataSource, sampleRows, maxBytes int) string {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPromptKB * 1024
	}

	w := &boundedWriter{limit: maxBytes}
	w.printf("Dataset: %s\n", ds.Name)
	w.printf("Rows: %d, Columns: %d\n\n", len(ds.Rows), len(ds.Columns))

	kinds := stats.Classify(ds)
	w.printf("Schema:\n")
	for _, col := range ds.Columns {
		w.printf("- %s (%s)\n", col, kindLabel(kinds[col]))
	}

	if st := stats.Compute(ds); len(st) > 0 {
		w.printf("\nNumeric column statistics:\n")
		for _, col := range ds.Columns {
			s, ok := st[col]
			if !ok {
				continue
			}
			w.printf("- %s: mean=%.2f median=%.2f min=%.2f max=%.2f count=%d\n", col, s.Mean, s.Median, s.Min, s.Max, s.Count)
		}
	}

	n := min(sampleRows, len(ds.Rows))
	w.printf("\nSample (first %d of %d rows, one JSON object per line):\n", n, len(ds.Rows))
	for _, row := range ds.Rows[:n] {
		line, err := json.Marshal(row)
		if err != nil {
			continue
		}
		if !w.printf("%s\n", line) {
			break
		}
	}
	return w.b.String()
}

const truncationMarker = "... (truncated)\n"

// boundedWriter appends whole lines until the next one would leave no room
// for the truncation marker.
type boundedWriter struct {
	b     strings.Builder
	limit int
	full  bool
}

func (w *boundedWriter) printf(format string, args ...any) bool {
	if w.full {
		return false
	}
	s := fmt.Sprintf(format, args...)
	if w.b.Len()+len(s)+len(truncationMarker) > w.limit {
		w.full = true
		if w.b.Len()+len(truncationMarker) <= w.limit {
			w.b.WriteString(truncationMarker)
		}
		return false
	}
	w.b.WriteString(s)
	return true
}

func kindLabel(k stats.ColumnKind) string {
	switch k {
	case stats.ColumnNumeric:
		return "numeric"
	case stats.ColumnCategorical:
		return "categorical"
	default:
		return "empty"
	}
}

package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/stats"
)

// MockTier derives a deterministic analysis from local arithmetic only. It
// always succeeds.
type MockTier struct{}

// NewMockTier returns the deterministic tier.
func NewMockTier() *MockTier { return &MockTier{} }

// Method implements Tier.
func (t *MockTier) Method() core.ExecutionMethod { return core.MethodMock }

// Execute implements Tier.
func (t *MockTier) Execute(_ context.Context, req core.ExecutionRequest, logf core.LogFunc) (*core.ExecutionResult, error) {
	ds := req.DataSource
	logf.Log("Running local statistical analysis")

	numeric := stats.NumericColumns(ds)
	categorical := stats.CategoricalColumns(ds)
	statistics := stats.Compute(ds)

	freqs := make(map[string][]stats.Frequency, len(categorical))
	for _, col := range categorical {
		freqs[col] = stats.Frequencies(ds, col)
	}

	res := &core.ExecutionResult{
		Success:        true,
		Method:         core.MethodMock,
		Summary:        mockSummary(req.Agent, ds, numeric, categorical, statistics, freqs),
		Insights:       mockInsights(ds, numeric, categorical, statistics, freqs),
		Visualizations: []core.Visualization{},
		Statistics:     statistics,
		CompletedAt:    time.Now().UTC(),
	}

	if len(categorical) > 0 && len(numeric) > 0 {
		if v, ok := stats.BarChart(ds, categorical[0], numeric[0]); ok {
			res.Visualizations = append(res.Visualizations, v)
		}
	}
	if len(categorical) > 0 {
		if v, ok := stats.PieChart(ds, categorical[0]); ok {
			res.Visualizations = append(res.Visualizations, v)
		}
	}
	logf.Log(fmt.Sprintf("Local analysis produced %d insights and %d charts", len(res.Insights), len(res.Visualizations)))
	return res, nil
}

func mockSummary(agent *core.Agent, ds *core.DataSource, numeric, categorical []string, st map[string]core.ColumnStats, freqs map[string][]stats.Frequency) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s: %s\n\n", heading(agent.Kind), ds.Name)
	fmt.Fprintf(&b, "The dataset contains **%d rows** across **%d columns** (%d numeric, %d categorical).\n",
		len(ds.Rows), len(ds.Columns), len(numeric), len(categorical))

	if len(numeric) > 0 {
		b.WriteString("\n### Numeric columns\n\n| Column | Mean | Median | Min | Max |\n|---|---|---|---|---|\n")
		for _, col := range numeric {
			s := st[col]
			fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f | %.2f |\n", col, s.Mean, s.Median, s.Min, s.Max)
		}
	}
	if len(categorical) > 0 {
		b.WriteString("\n### Categorical columns\n\n")
		for _, col := range categorical {
			f := freqs[col]
			if len(f) == 0 {
				continue
			}
			fmt.Fprintf(&b, "- **%s**: %d distinct values, most common is %q (%d)\n", col, len(f), f[0].Value, f[0].Count)
		}
	}
	if agent.Kind == core.KindSummarizer && len(ds.Rows) == 0 {
		b.WriteString("\nNo rows were available to summarize.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func heading(kind core.AgentKind) string {
	switch kind {
	case core.KindVisualizer:
		return "Visual Overview"
	case core.KindSummarizer:
		return "Summary"
	default:
		return "Data Analysis"
	}
}

func mockInsights(ds *core.DataSource, numeric, categorical []string, st map[string]core.ColumnStats, freqs map[string][]stats.Frequency) []string {
	insights := []string{fmt.Sprintf("Dataset %q has %d records and %d fields.", ds.Name, len(ds.Rows), len(ds.Columns))}

	var widest string
	var widestRange float64
	for _, col := range numeric {
		s := st[col]
		if r := s.Max - s.Min; widest == "" || r > widestRange {
			widest, widestRange = col, r
		}
	}
	if widest != "" {
		s := st[widest]
		insights = append(insights, fmt.Sprintf("%s spans the widest range (%.2f to %.2f, mean %.2f).", widest, s.Min, s.Max, s.Mean))
	}
	for _, col := range numeric {
		s := st[col]
		if s.Count > 0 && s.Mean != 0 && s.Median != 0 {
			skew := (s.Mean - s.Median) / s.Median
			if skew > 0.25 {
				insights = append(insights, fmt.Sprintf("%s is right-skewed: the mean exceeds the median by %.0f%%.", col, skew*100))
				break
			}
		}
	}
	if len(categorical) > 0 {
		col := categorical[0]
		if f := freqs[col]; len(f) > 0 {
			share := float64(f[0].Count) / float64(max(len(ds.Rows), 1)) * 100
			insights = append(insights, fmt.Sprintf("%q is the most frequent %s value (%.1f%% of rows).", f[0].Value, col, share))
		}
	}
	if missing := missingCells(ds); missing > 0 {
		insights = append(insights, fmt.Sprintf("%d cells are empty and were excluded from the statistics.", missing))
	}
	return insights
}

func missingCells(ds *core.DataSource) int {
	n := 0
	for _, r := range ds.Rows {
		for _, c := range ds.Columns {
			v, ok := r[c]
			if !ok || v == nil {
				n++
				continue
			}
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				n++
			}
		}
	}
	return n
}

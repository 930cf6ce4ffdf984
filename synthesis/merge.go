package synthesis

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/hupe1980/insightmesh/core"
)

// Merge combines contributions without any model involvement. Summaries are
// concatenated under one heading, insights are concatenated as-is,
// visualizations are deduplicated by title with the first occurrence kept,
// and statistics are shallow-merged with later collaborators winning.
func Merge(parts []Contribution) *core.ExecutionResult {
	var b strings.Builder
	b.WriteString("# Combined Analysis\n")

	insights := []string{}
	visualizations := []core.Visualization{}
	seen := map[string]bool{}

	for _, part := range parts {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", part.Agent.DisplayName(), strings.TrimSpace(part.Result.Summary))
		insights = append(insights, part.Result.Insights...)
		for _, v := range part.Result.Visualizations {
			if seen[v.Title] {
				continue
			}
			seen[v.Title] = true
			visualizations = append(visualizations, v)
		}
	}

	return &core.ExecutionResult{
		Success:           true,
		Summary:           strings.TrimRight(b.String(), "\n"),
		Insights:          insights,
		Visualizations:    visualizations,
		Statistics:        mergeStatistics(parts),
		Method:            core.MethodCollaborative,
		SynthesisStrategy: core.SynthesisMechanical,
		CompletedAt:       time.Now().UTC(),
	}
}

func mergeStatistics(parts []Contribution) map[string]core.ColumnStats {
	out := map[string]core.ColumnStats{}
	for _, part := range parts {
		maps.Copy(out, part.Result.Statistics)
	}
	return out
}

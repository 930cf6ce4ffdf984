package backend

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/stats"
)

// Normalize converts a parsed model response into the canonical result
// shape for ds.
func Normalize(p Parsed, ds *core.DataSource, method core.ExecutionMethod) *core.ExecutionResult {
	res := &core.ExecutionResult{Success: true, Method: method}

	switch v := p.(type) {
	case Structured:
		res.Summary = strings.TrimSpace(v.Payload.Summary)
		res.Insights = append([]string(nil), v.Payload.Insights...)
		for _, pv := range v.Payload.Visualizations {
			res.Visualizations = append(res.Visualizations, fromPayload(pv))
		}
		res.Statistics = v.Payload.Statistics
	case Raw:
		res.Summary = v.Text
		res.Visualizations = ExtractTables(v.Text)
	default:
		panic(fmt.Sprintf("backend: unhandled parsed variant %T", p))
	}

	FinalizeResult(res, ds)
	return res
}

// FinalizeResult fills defaults: non-nil collections, locally computed
// statistics when none were supplied, axis keys and series for every chart,
// and an automatic chart when nothing was produced.
func FinalizeResult(res *core.ExecutionResult, ds *core.DataSource) {
	if res.Insights == nil {
		res.Insights = []string{}
	}
	if len(res.Statistics) == 0 {
		res.Statistics = stats.Compute(ds)
	}
	if res.Summary == "" {
		res.Summary = fmt.Sprintf("Analysis of %s completed (%d rows, %d columns).", ds.Name, len(ds.Rows), len(ds.Columns))
	}

	out := res.Visualizations[:0]
	for i, v := range res.Visualizations {
		if len(v.Rows) == 0 {
			continue
		}
		out = append(out, withDefaults(v, i, ds))
	}
	res.Visualizations = out

	if len(res.Visualizations) == 0 {
		if auto, ok := stats.AutoChart(ds); ok {
			res.Visualizations = append(res.Visualizations, auto)
		}
	}
	if res.Visualizations == nil {
		res.Visualizations = []core.Visualization{}
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now().UTC()
	}
}

func fromPayload(pv PayloadVisualization) core.Visualization {
	kind := pv.Type
	if kind == "" {
		kind = pv.Kind
	}
	rows := pv.Data
	if len(rows) == 0 {
		rows = pv.Rows
	}
	cfg := core.VisualizationConfig{XKey: pv.XKey, YKey: pv.YKey}
	if s, ok := pv.Config["xKey"].(string); ok && s != "" {
		cfg.XKey = s
	}
	if s, ok := pv.Config["yKey"].(string); ok && s != "" {
		cfg.YKey = s
	}
	if list, ok := pv.Config["colors"].([]any); ok {
		for _, c := range list {
			if s, ok := c.(string); ok {
				cfg.Colors = append(cfg.Colors, s)
			}
		}
	}
	if list, ok := pv.Config["series"].([]any); ok {
		for _, it := range list {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			dk, _ := m["dataKey"].(string)
			if dk == "" {
				continue
			}
			name, _ := m["name"].(string)
			color, _ := m["color"].(string)
			cfg.Series = append(cfg.Series, core.Series{DataKey: dk, Name: name, Color: color})
		}
	}
	return core.Visualization{Kind: chartKind(kind), Title: pv.Title, Rows: rows, Config: cfg}
}

func chartKind(s string) core.ChartKind {
	switch k := core.ChartKind(strings.ToLower(strings.TrimSpace(s))); k {
	case core.ChartBar, core.ChartLine, core.ChartPie, core.ChartScatter, core.ChartArea:
		return k
	default:
		return core.ChartBar
	}
}

func withDefaults(v core.Visualization, idx int, ds *core.DataSource) core.Visualization {
	if v.Kind == "" {
		v.Kind = core.ChartBar
	}
	if v.Title == "" {
		v.Title = fmt.Sprintf("Chart %d", idx+1)
	}
	keys := rowKeys(v.Rows[0], ds)
	if v.Config.XKey == "" {
		for _, k := range keys {
			if _, numeric := stats.ToFloat(v.Rows[0][k]); !numeric {
				v.Config.XKey = k
				break
			}
		}
		if v.Config.XKey == "" && len(keys) > 0 {
			v.Config.XKey = keys[0]
		}
	}
	if v.Config.YKey == "" {
		for _, k := range keys {
			if k == v.Config.XKey {
				continue
			}
			if _, numeric := stats.ToFloat(v.Rows[0][k]); numeric {
				v.Config.YKey = k
				break
			}
		}
	}
	if len(v.Config.Series) == 0 && v.Config.YKey != "" {
		v.Config.Series = []core.Series{{DataKey: v.Config.YKey, Name: v.Config.YKey, Color: stats.DefaultPalette[idx%len(stats.DefaultPalette)]}}
	}
	if v.Kind == core.ChartPie && len(v.Config.Colors) == 0 {
		v.Config.Colors = stats.DefaultPalette
	}
	return v
}

// rowKeys orders keys by the data source column order, then alphabetically.
func rowKeys(row core.Row, ds *core.DataSource) []string {
	seen := map[string]bool{}
	var keys []string
	if ds != nil {
		for _, c := range ds.Columns {
			if _, ok := row[c]; ok {
				keys = append(keys, c)
				seen[c] = true
			}
		}
	}
	for _, k := range slices.Sorted(maps.Keys(row)) {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

var (
	tableSeparator = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
	headingLine    = regexp.MustCompile(`^\s*(#{1,6}\s+|\*\*)(.+?)(\*\*)?:?\s*$`)
	numericNoise   = strings.NewReplacer(",", "", "$", "", "%", "", "€", "", "**", "")
)

// ExtractTables turns markdown tables found in text into bar charts. The
// first column is the category axis and the first fully numeric column is
// the value axis; tables without a numeric column are skipped.
func ExtractTables(text string) []core.Visualization {
	lines := strings.Split(text, "\n")
	var out []core.Visualization
	for i := 0; i+1 < len(lines); i++ {
		if !isTableRow(lines[i]) || !tableSeparator.MatchString(lines[i+1]) {
			continue
		}
		header := splitRow(lines[i])
		title := tableTitle(lines, i, len(out)+1)
		j := i + 2
		var cells [][]string
		for ; j < len(lines) && isTableRow(lines[j]); j++ {
			cells = append(cells, splitRow(lines[j]))
		}
		if v, ok := tableChart(title, header, cells); ok {
			out = append(out, v)
		}
		i = j - 1
	}
	return out
}

func isTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "|") && strings.Count(t, "|") >= 2
}

func splitRow(line string) []string {
	t := strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(t, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.ReplaceAll(parts[i], "**", ""))
	}
	return parts
}

func tableTitle(lines []string, at, n int) string {
	for k := at - 1; k >= 0 && k >= at-3; k-- {
		l := strings.TrimSpace(lines[k])
		if l == "" {
			continue
		}
		if m := headingLine.FindStringSubmatch(l); m != nil {
			return strings.TrimSpace(m[2])
		}
		break
	}
	return fmt.Sprintf("Table %d", n)
}

func tableChart(title string, header []string, cells [][]string) (core.Visualization, bool) {
	if len(header) < 2 || len(cells) == 0 {
		return core.Visualization{}, false
	}
	valueCol := -1
	for c := 1; c < len(header) && valueCol < 0; c++ {
		numeric := true
		for _, r := range cells {
			if c >= len(r) {
				numeric = false
				break
			}
			if _, ok := stats.ToFloat(numericNoise.Replace(r[c])); !ok {
				numeric = false
				break
			}
		}
		if numeric {
			valueCol = c
		}
	}
	if valueCol < 0 {
		return core.Visualization{}, false
	}

	xKey, yKey := header[0], header[valueCol]
	rows := make([]core.Row, 0, len(cells))
	for _, r := range cells {
		f, _ := stats.ToFloat(numericNoise.Replace(r[valueCol]))
		rows = append(rows, core.Row{xKey: r[0], yKey: f})
	}
	return core.Visualization{
		Kind:  core.ChartBar,
		Title: title,
		Rows:  rows,
		Config: core.VisualizationConfig{
			XKey:   xKey,
			YKey:   yKey,
			Series: []core.Series{{DataKey: yKey, Name: yKey}},
		},
	}, true
}

// Package stats holds the local arithmetic shared by the deterministic mock
// tier and result normalization: column typing, numeric column statistics,
// categorical frequency tables and automatic chart derivation.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/insightmesh/core"
)

// ToFloat converts a scalar cell into a float. Numeric strings are accepted
// because CSV-backed sources deliver every cell as text.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Label renders a cell as a category label.
func Label(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ColumnKind is the inferred type of a column.
type ColumnKind int

const (
	// ColumnEmpty has no non-empty cells.
	ColumnEmpty ColumnKind = iota
	// ColumnNumeric has only numeric non-empty cells.
	ColumnNumeric
	// ColumnCategorical has at least one non-numeric non-empty cell.
	ColumnCategorical
)

// Classify infers the kind of every column of ds.
func Classify(ds *core.DataSource) map[string]ColumnKind {
	out := make(map[string]ColumnKind, len(ds.Columns))
	for _, col := range ds.Columns {
		kind := ColumnEmpty
		for _, r := range ds.Rows {
			v := r[col]
			if isEmpty(v) {
				continue
			}
			if _, ok := ToFloat(v); ok {
				if kind == ColumnEmpty {
					kind = ColumnNumeric
				}
				continue
			}
			kind = ColumnCategorical
			break
		}
		out[col] = kind
	}
	return out
}

// NumericColumns returns numeric columns in declared order.
func NumericColumns(ds *core.DataSource) []string {
	return columnsOf(ds, ColumnNumeric)
}

// CategoricalColumns returns categorical columns in declared order.
func CategoricalColumns(ds *core.DataSource) []string {
	return columnsOf(ds, ColumnCategorical)
}

func columnsOf(ds *core.DataSource, kind ColumnKind) []string {
	kinds := Classify(ds)
	var cols []string
	for _, c := range ds.Columns {
		if kinds[c] == kind {
			cols = append(cols, c)
		}
	}
	return cols
}

// Describe computes mean, median, min, max and count of values. The median
// is the element at the sorted midpoint index n/2.
func Describe(values []float64) core.ColumnStats {
	if len(values) == 0 {
		return core.ColumnStats{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return core.ColumnStats{
		Mean:   sum / float64(len(sorted)),
		Median: sorted[len(sorted)/2],
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Count:  len(sorted),
	}
}

// NumericValues extracts the numeric cells of a column.
func NumericValues(ds *core.DataSource, col string) []float64 {
	var vals []float64
	for _, r := range ds.Rows {
		if f, ok := ToFloat(r[col]); ok {
			vals = append(vals, f)
		}
	}
	return vals
}

// Compute returns statistics for every numeric column. A source without
// numeric columns yields an empty, non-nil map.
func Compute(ds *core.DataSource) map[string]core.ColumnStats {
	out := map[string]core.ColumnStats{}
	for _, col := range NumericColumns(ds) {
		out[col] = Describe(NumericValues(ds, col))
	}
	return out
}

// Frequency is one entry of a categorical frequency table.
type Frequency struct {
	Value string
	Count int
}

// Frequencies counts category occurrences, most frequent first; ties keep
// first-seen order.
func Frequencies(ds *core.DataSource, col string) []Frequency {
	idx := map[string]int{}
	var table []Frequency
	for _, r := range ds.Rows {
		v := r[col]
		if isEmpty(v) {
			continue
		}
		label := Label(v)
		if i, ok := idx[label]; ok {
			table[i].Count++
			continue
		}
		idx[label] = len(table)
		table = append(table, Frequency{Value: label, Count: 1})
	}
	slices.SortStableFunc(table, func(a, b Frequency) int { return b.Count - a.Count })
	return table
}

// GroupMean averages numCol per category of catCol in first-seen order.
func GroupMean(ds *core.DataSource, catCol, numCol string) []core.Row {
	type acc struct {
		sum   float64
		count int
	}
	var order []string
	groups := map[string]*acc{}
	for _, r := range ds.Rows {
		if isEmpty(r[catCol]) {
			continue
		}
		f, ok := ToFloat(r[numCol])
		if !ok {
			continue
		}
		label := Label(r[catCol])
		g, seen := groups[label]
		if !seen {
			g = &acc{}
			groups[label] = g
			order = append(order, label)
		}
		g.sum += f
		g.count++
	}
	rows := make([]core.Row, 0, len(order))
	for _, label := range order {
		g := groups[label]
		rows = append(rows, core.Row{catCol: label, numCol: round2(g.sum / float64(g.count))})
	}
	return rows
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

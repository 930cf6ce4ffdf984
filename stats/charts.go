package stats

import (
	"fmt"

	"github.com/hupe1980/insightmesh/core"
)

// MaxChartRows caps the number of categories plotted in derived charts.
const MaxChartRows = 10

// DefaultPalette is applied to derived charts.
var DefaultPalette = []string{"#8884d8", "#82ca9d", "#ffc658", "#ff7300", "#0088fe", "#00c49f"}

// BarChart derives a bar chart of the mean of numCol per category of catCol.
func BarChart(ds *core.DataSource, catCol, numCol string) (core.Visualization, bool) {
	rows := GroupMean(ds, catCol, numCol)
	if len(rows) == 0 {
		return core.Visualization{}, false
	}
	if len(rows) > MaxChartRows {
		rows = rows[:MaxChartRows]
	}
	return core.Visualization{
		Kind:  core.ChartBar,
		Title: fmt.Sprintf("Average %s by %s", numCol, catCol),
		Rows:  rows,
		Config: core.VisualizationConfig{
			XKey:   catCol,
			YKey:   numCol,
			Series: []core.Series{{DataKey: numCol, Name: numCol, Color: DefaultPalette[0]}},
		},
	}, true
}

// PieChart derives a pie chart of category frequencies.
func PieChart(ds *core.DataSource, catCol string) (core.Visualization, bool) {
	freq := Frequencies(ds, catCol)
	if len(freq) == 0 {
		return core.Visualization{}, false
	}
	if len(freq) > MaxChartRows {
		freq = freq[:MaxChartRows]
	}
	rows := make([]core.Row, 0, len(freq))
	for _, f := range freq {
		rows = append(rows, core.Row{"name": f.Value, "value": f.Count})
	}
	return core.Visualization{
		Kind:  core.ChartPie,
		Title: fmt.Sprintf("Distribution of %s", catCol),
		Rows:  rows,
		Config: core.VisualizationConfig{
			XKey:   "name",
			YKey:   "value",
			Series: []core.Series{{DataKey: "value", Name: catCol}},
			Colors: DefaultPalette,
		},
	}, true
}

// AutoChart derives a bar chart from the first categorical and first numeric
// column. It reports false when the source lacks either.
func AutoChart(ds *core.DataSource) (core.Visualization, bool) {
	cats := CategoricalColumns(ds)
	nums := NumericColumns(ds)
	if len(cats) == 0 || len(nums) == 0 {
		return core.Visualization{}, false
	}
	return BarChart(ds, cats[0], nums[0])
}

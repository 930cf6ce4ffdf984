package testutil

import (
	"github.com/hupe1980/insightmesh/core"
)

// DataSourceBuilder helps construct tabular data sources for tests.
// Example:
//
//	ds := NewDataSourceBuilder("sales").Columns("region", "revenue").Row("North", 100).Build()
type DataSourceBuilder struct {
	id, name string
	columns  []string
	rows     []core.Row
}

// NewDataSourceBuilder creates a builder; the name defaults to the id.
func NewDataSourceBuilder(id string) *DataSourceBuilder {
	return &DataSourceBuilder{id: id, name: id}
}

// Name sets the display name (chainable).
func (b *DataSourceBuilder) Name(name string) *DataSourceBuilder {
	b.name = name
	return b
}

// Columns declares the column order used by Row (chainable).
func (b *DataSourceBuilder) Columns(cols ...string) *DataSourceBuilder {
	b.columns = append(b.columns, cols...)
	return b
}

// Row appends a row whose values follow the declared columns. Extra values
// are ignored and missing ones are left out (chainable).
func (b *DataSourceBuilder) Row(vals ...any) *DataSourceBuilder {
	r := make(core.Row, len(b.columns))
	for i, col := range b.columns {
		if i < len(vals) {
			r[col] = vals[i]
		}
	}
	b.rows = append(b.rows, r)
	return b
}

// Build returns a *core.DataSource with metadata filled in.
func (b *DataSourceBuilder) Build() *core.DataSource {
	return core.NewDataSource(b.id, b.name, append([]string(nil), b.columns...), append([]core.Row(nil), b.rows...))
}

// SalesData is a small mixed numeric and categorical data set.
func SalesData() *core.DataSource {
	return NewDataSourceBuilder("sales").Name("Sales").
		Columns("region", "revenue").
		Row("North", 100).
		Row("South", 300).
		Row("North", 200).
		Build()
}

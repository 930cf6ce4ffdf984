package core

import (
	"maps"
	"slices"
)

// Row is one record of a tabular data source.
type Row map[string]any

// DataSourceMetadata carries summary counts of a data source.
type DataSourceMetadata struct {
	RowCount    int `json:"rowCount" yaml:"rowCount"`
	ColumnCount int `json:"columnCount" yaml:"columnCount"`
}

// DataSource is a named tabular data set.
type DataSource struct {
	ID       string             `json:"id" yaml:"id"`
	Name     string             `json:"name" yaml:"name"`
	Rows     []Row              `json:"rows" yaml:"rows"`
	Columns  []string           `json:"columns" yaml:"columns"`
	Metadata DataSourceMetadata `json:"metadata" yaml:"metadata"`
}

// NewDataSource builds a data source and fills in its metadata. When columns
// is empty the column order is taken from first appearance across rows.
func NewDataSource(id, name string, columns []string, rows []Row) *DataSource {
	ds := &DataSource{ID: id, Name: name, Columns: columns, Rows: rows}
	ds.Normalize()
	return ds
}

// Normalize derives missing columns and refreshes metadata counts.
func (d *DataSource) Normalize() {
	if len(d.Columns) == 0 {
		seen := map[string]bool{}
		for _, r := range d.Rows {
			for _, k := range slices.Sorted(maps.Keys(r)) {
				if !seen[k] {
					seen[k] = true
					d.Columns = append(d.Columns, k)
				}
			}
		}
	}
	d.Metadata.RowCount = len(d.Rows)
	d.Metadata.ColumnCount = len(d.Columns)
}

// Validate checks that the data source is usable.
func (d *DataSource) Validate() error {
	if d == nil || d.ID == "" {
		return NewConfigurationError(ErrDataSourceRequired, "data source is missing")
	}
	return nil
}

// Column returns all values of a column in row order (nil for missing cells).
func (d *DataSource) Column(name string) []any {
	out := make([]any, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r[name]
	}
	return out
}

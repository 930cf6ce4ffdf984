package core

import (
	"context"
	"errors"
	"time"
)

// ErrReportNotFound is returned by stores for unknown report ids.
var ErrReportNotFound = errors.New("report not found")

// Report is the persisted form of an execution result.
type Report struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	AgentID         string                 `json:"agentId,omitempty"`
	DataSourceID    string                 `json:"dataSourceId,omitempty"`
	Summary         string                 `json:"summary"`
	Insights        []string               `json:"insights"`
	Visualizations  []Visualization        `json:"visualizations"`
	Statistics      map[string]ColumnStats `json:"statistics"`
	GeneratedAt     time.Time              `json:"generatedAt"`
	ExecutionMethod ExecutionMethod        `json:"executionMethod"`
}

// NewReport converts a result into a report for the given agent and data source.
func NewReport(agent *Agent, ds *DataSource, res *ExecutionResult) Report {
	r := Report{
		ID:              NewID(),
		Summary:         res.Summary,
		Insights:        res.Insights,
		Visualizations:  res.Visualizations,
		Statistics:      res.Statistics,
		GeneratedAt:     time.Now().UTC(),
		ExecutionMethod: res.Method,
	}
	if agent != nil {
		r.AgentID = agent.ID
		r.Name = agent.DisplayName()
	}
	if ds != nil {
		r.DataSourceID = ds.ID
		if r.Name != "" {
			r.Name += " / " + ds.Name
		} else {
			r.Name = ds.Name
		}
	}
	return r
}

// Result converts a report back into a successful execution result.
func (r Report) Result() *ExecutionResult {
	res := &ExecutionResult{
		Success:        true,
		Summary:        r.Summary,
		Insights:       r.Insights,
		Visualizations: r.Visualizations,
		Statistics:     r.Statistics,
		Method:         r.ExecutionMethod,
		CompletedAt:    r.GeneratedAt,
	}
	if res.Insights == nil {
		res.Insights = []string{}
	}
	if res.Statistics == nil {
		res.Statistics = map[string]ColumnStats{}
	}
	return res
}

// ReportStore persists generated reports.
type ReportStore interface {
	Save(ctx context.Context, r Report) error
	Get(ctx context.Context, id string) (Report, error)
	List(ctx context.Context) ([]Report, error)
	Delete(ctx context.Context, id string) error
}

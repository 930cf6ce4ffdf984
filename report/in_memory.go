package report

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/insightmesh/core"
)

// InMemoryStore is a volatile ReportStore keeping reports in a process local
// map. It is safe for concurrent access. Reports are copied on the way in
// and out so callers cannot mutate stored state.
type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[string]core.Report
}

var _ core.ReportStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[string]core.Report)}
}

// Save stores r, replacing any report with the same id.
func (s *InMemoryStore) Save(_ context.Context, r core.Report) error {
	if r.ID == "" {
		return fmt.Errorf("save report: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = clone(r)
	return nil
}

// Get returns the report with id or core.ErrReportNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (core.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return core.Report{}, fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
	}
	return clone(r), nil
}

// List returns all reports, newest first.
func (s *InMemoryStore) List(_ context.Context) ([]core.Report, error) {
	s.mu.RLock()
	out := make([]core.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, clone(r))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b core.Report) int {
		if c := b.GeneratedAt.Compare(a.GeneratedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Delete removes the report with id. Deleting an unknown id is an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
	}
	delete(s.reports, id)
	return nil
}

func clone(r core.Report) core.Report {
	r.Insights = slices.Clone(r.Insights)
	r.Visualizations = slices.Clone(r.Visualizations)
	r.Statistics = maps.Clone(r.Statistics)
	return r
}

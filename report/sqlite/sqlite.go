// Package sqlite implements a durable ReportStore on SQLite using the pure
// Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/insightmesh/core"
	_ "modernc.org/sqlite"
)

// Store persists reports in a single SQLite table. Collections are stored
// as JSON columns.
type Store struct {
	db *sql.DB
}

var _ core.ReportStore = (*Store)(nil)

// New opens (and migrates) the database at path. ":memory:" is accepted for
// tests.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			agent_id         TEXT,
			data_source_id   TEXT,
			summary          TEXT NOT NULL,
			insights         TEXT NOT NULL,
			visualizations   TEXT NOT NULL,
			statistics       TEXT NOT NULL,
			execution_method TEXT NOT NULL,
			generated_at     DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_agent ON reports(agent_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts or replaces r.
func (s *Store) Save(ctx context.Context, r core.Report) error {
	if r.ID == "" {
		return fmt.Errorf("save report: empty id")
	}
	insights, err := json.Marshal(nonNil(r.Insights))
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}
	viz, err := json.Marshal(nonNil(r.Visualizations))
	if err != nil {
		return fmt.Errorf("encode visualizations: %w", err)
	}
	st := r.Statistics
	if st == nil {
		st = map[string]core.ColumnStats{}
	}
	stats, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, name, agent_id, data_source_id, summary, insights, visualizations, statistics, execution_method, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			agent_id = excluded.agent_id,
			data_source_id = excluded.data_source_id,
			summary = excluded.summary,
			insights = excluded.insights,
			visualizations = excluded.visualizations,
			statistics = excluded.statistics,
			execution_method = excluded.execution_method,
			generated_at = excluded.generated_at`,
		r.ID, r.Name, r.AgentID, r.DataSourceID, r.Summary, string(insights), string(viz), string(stats),
		string(r.ExecutionMethod), r.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, name, agent_id, data_source_id, summary, insights, visualizations, statistics, execution_method, generated_at FROM reports`

// Get returns the report with id or core.ErrReportNotFound.
func (s *Store) Get(ctx context.Context, id string) (core.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Report{}, fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
	}
	if err != nil {
		return core.Report{}, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// List returns all reports, newest first.
func (s *Store) List(ctx context.Context) ([]core.Report, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY generated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []core.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes the report with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
	}
	return nil
}

func scanReport(scanner interface {
	Scan(dest ...any) error
}) (core.Report, error) {
	var (
		r                       core.Report
		agentID, dataSourceID   sql.NullString
		insights, viz, st, meth string
		generated               time.Time
	)
	if err := scanner.Scan(&r.ID, &r.Name, &agentID, &dataSourceID, &r.Summary, &insights, &viz, &st, &meth, &generated); err != nil {
		return core.Report{}, err
	}
	r.AgentID = agentID.String
	r.DataSourceID = dataSourceID.String
	r.ExecutionMethod = core.ExecutionMethod(meth)
	r.GeneratedAt = generated.UTC()

	if err := json.Unmarshal([]byte(insights), &r.Insights); err != nil {
		return core.Report{}, fmt.Errorf("decode insights: %w", err)
	}
	if err := json.Unmarshal([]byte(viz), &r.Visualizations); err != nil {
		return core.Report{}, fmt.Errorf("decode visualizations: %w", err)
	}
	if err := json.Unmarshal([]byte(st), &r.Statistics); err != nil {
		return core.Report{}, fmt.Errorf("decode statistics: %w", err)
	}
	return r, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

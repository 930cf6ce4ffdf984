// Package report provides ReportStore implementations. The in-memory store
// lives here; durable storage is in report/sqlite.
package report

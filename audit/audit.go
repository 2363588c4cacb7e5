// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit implements the immutable tool-call audit log: every
// record is append-only, with no update or delete path back onto a row
// once inserted.
package audit

import (
	"context"
	"database/sql"

	"agentfs/store"
)

type Log struct {
	store *store.Store
}

func New(s *store.Store) *Log {
	return &Log{store: s}
}

// Record inserts one tool-call entry and returns its id. duration_ms is
// derived from the two epoch-second timestamps:
// (completed_at - started_at) * 1000.
func (l *Log) Record(ctx context.Context, name string, startedAt, completedAt int64, params, result, errMsg *string) (int64, error) {
	durationMs := (completedAt - startedAt) * 1000

	var id int64
	err := l.store.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tool_calls (name, parameters, result, error, started_at, completed_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			name, params, result, errMsg, startedAt, completedAt, durationMs)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// Entry is one row of the audit log as returned by queries.
type Entry struct {
	ID          int64
	Name        string
	Parameters  *string
	Result      *string
	Error       *string
	StartedAt   int64
	CompletedAt int64
	DurationMs  int64
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Parameters, &e.Result, &e.Error, &e.StartedAt, &e.CompletedAt, &e.DurationMs); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const entryColumns = `id, name, parameters, result, error, started_at, completed_at, duration_ms`

// ByName returns the most recent entries for name, newest first, bounded
// by limit (0 means unbounded).
func (l *Log) ByName(ctx context.Context, name string, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM tool_calls WHERE name = ? ORDER BY started_at DESC`
	args := []any{name}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.store.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Since returns entries started at or after epochSeconds, newest first,
// bounded by limit (0 means unbounded).
func (l *Log) Since(ctx context.Context, epochSeconds int64, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM tool_calls WHERE started_at >= ? ORDER BY started_at DESC`
	args := []any{epochSeconds}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.store.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Stat is one per-name aggregate row returned by Stats.
type Stat struct {
	Name          string
	Total         int64
	Successful    int64
	Failed        int64
	AvgDurationMs float64
}

// Stats returns per-name aggregates: total calls, successful calls
// (error IS NULL), failed calls, and average duration in milliseconds.
func (l *Log) Stats(ctx context.Context) ([]Stat, error) {
	rows, err := l.store.DB.QueryContext(ctx, `
		SELECT name,
			count(*) AS total,
			sum(CASE WHEN error IS NULL THEN 1 ELSE 0 END) AS successful,
			sum(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END) AS failed,
			avg(duration_ms) AS avg_duration_ms
		FROM tool_calls
		GROUP BY name
		ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []Stat
	for rows.Next() {
		var s Stat
		if err := rows.Scan(&s.Name, &s.Total, &s.Successful, &s.Failed, &s.AvgDurationMs); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

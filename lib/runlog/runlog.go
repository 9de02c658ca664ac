// Package runlog keeps a sqlite ledger of crawler runs so the CLI can
// answer "when did I last pull paypal and did it work".
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"readtx/lib/configutil"
)

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	crawler TEXT NOT NULL,
	since_unix INTEGER NOT NULL,
	until_unix INTEGER NOT NULL,
	started_unix INTEGER NOT NULL,
	finished_unix INTEGER NOT NULL,
	row_count INTEGER NOT NULL,
	output TEXT NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_crawler ON runs (crawler, started_unix);
`

type Run struct {
	Crawler  string
	Since    time.Time
	Until    time.Time
	Started  time.Time
	Finished time.Time
	Rows     int
	Output   string
	// Status is "ok" or the failing stage's error text.
	Status string
}

type Log struct {
	db *sql.DB
}

// DefaultPath places the ledger next to the rest of the per-user state.
func DefaultPath() (string, error) {
	dir, err := configutil.UserConfigDir("readtx")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: migrate: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) Record(ctx context.Context, r Run) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs
			(crawler, since_unix, until_unix, started_unix, finished_unix, row_count, output, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Crawler,
		r.Since.Unix(),
		r.Until.Unix(),
		r.Started.Unix(),
		r.Finished.Unix(),
		r.Rows,
		r.Output,
		r.Status,
	)
	if err != nil {
		return fmt.Errorf("runlog: record: %w", err)
	}
	return nil
}

// Recent returns the newest runs first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT crawler, since_unix, until_unix, started_unix, finished_unix, row_count, output, status
		 FROM runs ORDER BY started_unix DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("runlog: query: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var since, until, started, finished int64
		err := rows.Scan(&r.Crawler, &since, &until, &started, &finished, &r.Rows, &r.Output, &r.Status)
		if err != nil {
			return nil, fmt.Errorf("runlog: scan: %w", err)
		}
		r.Since = time.Unix(since, 0)
		r.Until = time.Unix(until, 0)
		r.Started = time.Unix(started, 0)
		r.Finished = time.Unix(finished, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

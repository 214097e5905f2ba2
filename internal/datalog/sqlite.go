package datalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/sweeney/vent-controller/internal/adc"
)

const createSamplesSQL = `
CREATE TABLE IF NOT EXISTS samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    unix_ms INTEGER NOT NULL,
    ch01 INTEGER NOT NULL,
    ch02 INTEGER NOT NULL,
    ch03 INTEGER NOT NULL
);`

const insertSampleSQL = `INSERT INTO samples(run_id, timestamp, unix_ms, ch01, ch02, ch03) VALUES(?, ?, ?, ?, ?, ?)`

// SQLiteWriter appends samples to a SQLite database, tagging each row with
// the run id of this process.
type SQLiteWriter struct {
	db    *sql.DB
	stmt  *sql.Stmt
	runID uuid.UUID
}

// NewSQLiteWriter opens (or creates) the database at path.
func NewSQLiteWriter(path string, runID uuid.UUID) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One writer goroutine; avoid SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createSamplesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create samples table: %w", err)
	}
	stmt, err := db.Prepare(insertSampleSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &SQLiteWriter{db: db, stmt: stmt, runID: runID}, nil
}

// WriteData inserts one row.
func (s *SQLiteWriter) WriteData(ts time.Time, values [adc.Channels]int32) error {
	_, err := s.stmt.Exec(s.runID.String(), ts.Format(rowLayout), ts.UnixMilli(), values[0], values[1], values[2])
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Close releases the statement and database.
func (s *SQLiteWriter) Close() error {
	return multierr.Combine(s.stmt.Close(), s.db.Close())
}

// Package audit is an optional SQLite-backed pairing log for the
// rendezvous server. Migrations are a plain ordered slice of statements;
// the schema is a single table.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS pairings (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		paired_at  INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pairings_session ON pairings(session_id)`,
	`PRAGMA journal_mode=WAL`,
}

// Log is a SQLite-backed rendezvous.AuditLogger.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral storage.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit: migration %d: %w", i+1, err)
		}
	}
	return &Log{db: db}, nil
}

// LogPairing records that sessionID completed a successful peer pairing.
func (l *Log) LogPairing(sessionID string) error {
	_, err := l.db.Exec(`INSERT INTO pairings (session_id, paired_at) VALUES (?, ?)`, sessionID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("audit: insert pairing: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

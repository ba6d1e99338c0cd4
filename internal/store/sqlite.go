//go:build !js || !wasm

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvcrn/turmeric/internal/coordinator"
	_ "modernc.org/sqlite"
)

// SQLite persists entries in a single table keyed by account and resource
type SQLite struct {
	db      *sql.DB
	account string
}

// OpenSQLite opens (creating if needed) the database at path. account
// namespaces the rows, so one file can hold several accounts.
func OpenSQLite(path, account string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite supports one writer at a time. Keeping a single shared connection
	// avoids intra-process write contention that can surface as SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := execStatements(db,
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=15000;`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite pragmas: %w", err)
	}

	if err := execStatements(db,
		`CREATE TABLE IF NOT EXISTS resource_entries (
			account TEXT NOT NULL,
			resource TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (account, resource)
		);`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migration: %w", err)
	}

	return &SQLite{db: db, account: account}, nil
}

func execStatements(db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) ([]coordinator.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource, payload_json, fetched_at
		 FROM resource_entries
		 WHERE account = ?
		 ORDER BY resource`,
		s.account,
	)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var entries []coordinator.Entry
	for rows.Next() {
		var (
			resource, payload, fetchedAt string
		)
		if err := rows.Scan(&resource, &payload, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, coordinator.Entry{
			Resource:  resource,
			Payload:   json.RawMessage(payload),
			FetchedAt: parseTime(fetchedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func (s *SQLite) Save(ctx context.Context, entry coordinator.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resource_entries (account, resource, payload_json, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(account, resource) DO UPDATE SET
		   payload_json = excluded.payload_json,
		   fetched_at = excluded.fetched_at`,
		s.account,
		entry.Resource,
		string(entry.Payload),
		formatTime(entry.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("save %s entry: %w", entry.Resource, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

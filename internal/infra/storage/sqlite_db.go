package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite initializes the local SQLite database and creates the necessary
// schemas for persisting custody snapshots, rap sheets, and the immutable
// event log.
func InitSQLite(dbPath string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// Create tables
	if err := createSchemas(db); err != nil {
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS custody_snapshots (
			actor_id TEXT PRIMARY KEY,
			actor_name TEXT,
			unit_id TEXT NOT NULL,
			sentence_minutes INTEGER NOT NULL,
			fine_amount REAL NOT NULL DEFAULT 0.0,
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL,
			last_updated DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS offenses (
			id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			severity REAL NOT NULL DEFAULT 1.0,
			witnessed BOOLEAN NOT NULL DEFAULT 0,
			witness_count INTEGER NOT NULL DEFAULT 0,
			victim_class TEXT,
			timestamp DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			custody_day INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor_id ON events(actor_id);`,
		`CREATE INDEX IF NOT EXISTS idx_events_custody_day ON events(custody_day);`,
		`CREATE INDEX IF NOT EXISTS idx_offenses_actor_id ON offenses(actor_id);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

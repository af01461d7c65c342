// Package store persists users and locations in SQLite and fans out
// location changes to live subscribers.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the backing database. Location mutations publish a full
// snapshot to every subscriber, so writes and the snapshot read are
// serialized under mu.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	broker *Broker
}

// Open opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	s := &Store{db: db, broker: NewBroker()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[store] opened %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS locations (
			user_id     TEXT PRIMARY KEY,
			user_email  TEXT,
			latitude    REAL NOT NULL,
			longitude   REAL NOT NULL,
			captured_at TIMESTAMP NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close shuts the broker then the database.
func (s *Store) Close() error {
	s.broker.Shutdown()
	return s.db.Close()
}

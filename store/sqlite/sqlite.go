// Package sqlite implements oni.RecordStore over pure-Go SQLite.
// Zero CGO required. Records live in one key-value table keyed by path,
// with the JSON document stored as text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	oni "github.com/onios/oni"
	"github.com/onios/oni/internal/pathlock"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store implements oni.RecordStore backed by a local SQLite file.
type Store struct {
	db    *sql.DB
	locks pathlock.Map
}

var _ oni.RecordStore = (*Store)(nil)

// New opens a record store at dbPath. A single shared connection serializes
// writers through one connection, eliminating SQLITE_BUSY errors from
// concurrent writers opening independent connections.
func New(dbPath string) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}
}

// Init creates the records table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS records (
		path TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func (s *Store) Read(ctx context.Context, path string, out any) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)
	raw, err := s.readRaw(ctx, path)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	// Corrupt rows degrade to the caller's fallback; the row is left as-is.
	if jsonErr := json.Unmarshal(raw, out); jsonErr != nil {
		return nil
	}
	return nil
}

func (s *Store) readRaw(ctx context.Context, path string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM records WHERE path = ?`, path).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (s *Store) Write(ctx context.Context, path string, v any) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)
	return s.writeLocked(ctx, path, v)
}

func (s *Store) writeLocked(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (path, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		path, string(body), oni.NowUnix())
	return err
}

func (s *Store) Update(ctx context.Context, path string, fn func(raw []byte) (any, error)) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	raw, err := s.readRaw(ctx, path)
	if err != nil {
		return err
	}
	if !json.Valid(raw) {
		raw = nil
	}
	next, err := fn(raw)
	if err != nil {
		return err
	}
	return s.writeLocked(ctx, path, next)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, path)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Package postgres implements oni.RecordStore using PostgreSQL with a
// single JSONB records table. For multi-machine setups where the JSON file
// backend is not an option.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	oni "github.com/onios/oni"
	"github.com/onios/oni/internal/pathlock"
)

// Store implements oni.RecordStore backed by PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	locks pathlock.Map
}

var _ oni.RecordStore = (*Store)(nil)

// New creates a record store on the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the records table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS oni_records (
		path TEXT PRIMARY KEY,
		body JSONB NOT NULL,
		updated_at BIGINT NOT NULL
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
	if jsonErr := json.Unmarshal(raw, out); jsonErr != nil {
		return nil
	}
	return nil
}

func (s *Store) readRaw(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM oni_records WHERE path = $1`, path).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return body, nil
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO oni_records (path, body, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (path) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		path, body, oni.NowUnix())
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
	_, err := s.pool.Exec(ctx, `DELETE FROM oni_records WHERE path = $1`, path)
	return err
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

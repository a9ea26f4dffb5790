// Package jsonfile implements oni.RecordStore over one JSON file per record
// path inside a data directory. The default backend: no external service,
// records stay human-inspectable.
//
// Writes go through a temp file + rename so a crashed write never leaves a
// truncated record behind.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	oni "github.com/onios/oni"
	"github.com/onios/oni/internal/pathlock"
)

// Store implements oni.RecordStore backed by a directory of JSON files.
type Store struct {
	dir   string
	locks pathlock.Map
}

var _ oni.RecordStore = (*Store)(nil)

// New creates a file-backed record store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// filePath maps a record path to a file. Path separators become directories;
// anything escaping the root is flattened.
func (s *Store) filePath(path string) string {
	clean := filepath.Clean(strings.ReplaceAll(path, "..", ""))
	return filepath.Join(s.dir, clean+".json")
}

func (s *Store) Read(ctx context.Context, path string, out any) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)
	return s.readLocked(path, out)
}

// readLocked reads without taking the path lock. A missing or unparseable
// record leaves out untouched and returns nil; the stored bytes are never
// modified as a side effect of a failed read.
func (s *Store) readLocked(path string, out any) error {
	data, err := os.ReadFile(s.filePath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if jsonErr := json.Unmarshal(data, out); jsonErr != nil {
		return nil
	}
	return nil
}

func (s *Store) Write(ctx context.Context, path string, v any) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)
	return s.writeLocked(path, v)
}

func (s *Store) writeLocked(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	file := s.filePath(path)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, file)
}

func (s *Store) Update(ctx context.Context, path string, fn func(raw []byte) (any, error)) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	raw, err := os.ReadFile(s.filePath(path))
	if err != nil || !json.Valid(raw) {
		raw = nil
	}
	next, err := fn(raw)
	if err != nil {
		return err
	}
	return s.writeLocked(path, next)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)
	err := os.Remove(s.filePath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) Close() error { return nil }

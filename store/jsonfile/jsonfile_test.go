package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type record struct {
	Count int      `json:"count"`
	Items []string `json:"items"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestReadWriteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := record{Count: 3, Items: []string{"a", "b"}}
	if err := s.Write(ctx, "memories", want); err != nil {
		t.Fatal(err)
	}

	var got record
	if err := s.Read(ctx, "memories", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 3 || len(got.Items) != 2 {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadMissingLeavesFallback(t *testing.T) {
	s := newTestStore(t)

	got := record{Count: 42}
	if err := s.Read(context.Background(), "nope", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 42 {
		t.Errorf("fallback clobbered: got %+v", got)
	}
}

func TestReadCorruptLeavesFallbackAndFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := filepath.Join(s.dir, "bad.json")
	if err := os.WriteFile(file, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := record{Count: 7}
	if err := s.Read(ctx, "bad", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 7 {
		t.Errorf("fallback clobbered: got %+v", got)
	}

	// The corrupt record must not be rewritten by the failed read.
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{not json" {
		t.Errorf("stored record modified by read: %q", data)
	}
}

func TestUpdateSerializesConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "counter", func(raw []byte) (any, error) {
				var r record
				if raw != nil {
					if err := json.Unmarshal(raw, &r); err != nil {
						return nil, err
					}
				}
				r.Count++
				return r, nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	var got record
	if err := s.Read(ctx, "counter", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != n {
		t.Errorf("Count = %d, want %d — a concurrent write was dropped", got.Count, n)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "gone", record{Count: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "gone"); err != nil {
		t.Errorf("deleting a missing record should be a no-op, got %v", err)
	}

	var got record
	if err := s.Read(ctx, "gone", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 0 {
		t.Errorf("record survived delete: %+v", got)
	}
}

func TestNestedPaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "conversations/abc/messages", record{Count: 2}); err != nil {
		t.Fatal(err)
	}
	var got record
	if err := s.Read(ctx, "conversations/abc/messages", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 2 {
		t.Errorf("got %+v", got)
	}
}

package oni

import "context"

// RecordStore is generic durable access to named JSON-shaped records.
// Operations targeting the same path are serialized; different paths proceed
// in parallel. A missing or corrupt record on Read leaves out untouched (the
// caller's zero value or preloaded fallback) and returns nil — a failed read
// never rewrites or wipes the stored record.
type RecordStore interface {
	// Read unmarshals the record at path into out.
	Read(ctx context.Context, path string, out any) error
	// Write replaces the record at path wholesale.
	Write(ctx context.Context, path string, v any) error
	// Update runs a read-modify-write under the path's serialization lock.
	// fn receives the raw stored bytes (nil when missing or corrupt) and
	// returns the replacement record. Returning an error aborts the write.
	Update(ctx context.Context, path string, fn func(raw []byte) (any, error)) error
	// Delete removes the record at path. Deleting a missing record is a no-op.
	Delete(ctx context.Context, path string) error
	Close() error
}

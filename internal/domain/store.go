package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// KVWrite is a single put inside an atomic batch.
type KVWrite struct {
	Key   []byte
	Value []byte
}

// KVStore is the flat key-value namespace that holds all ledger state.
// Get returns ErrNotFound for absent keys. Apply commits every write or none.
type KVStore interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Apply(ctx context.Context, writes []KVWrite) error
	// Scan calls fn for every key with the given prefix in ascending key
	// order. Returning a non-nil error from fn stops the scan.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Package bolt stores the ledger's flat key space in a single bbolt bucket.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alanyoungcy/amby/internal/domain"
)

var bucketLedger = []byte("ledger")

// KVStore implements domain.KVStore on a bbolt file.
type KVStore struct {
	db *bolt.DB
}

// Open creates or opens the bbolt file at path.
func Open(path string) (*KVStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLedger)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Get returns a copy of the value stored under key.
func (s *KVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLedger).Get(key)
		if v == nil {
			return domain.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Put stores a single value.
func (s *KVStore) Put(ctx context.Context, key, value []byte) error {
	return s.Apply(ctx, []domain.KVWrite{{Key: key, Value: value}})
}

// Apply commits writes in one read-write transaction.
func (s *KVStore) Apply(ctx context.Context, writes []domain.KVWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		for _, w := range writes {
			if err := b.Put(w.Key, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bolt: apply %d writes: %w", len(writes), err)
	}
	return nil
}

// Scan iterates keys with prefix in ascending order inside one read
// transaction. fn must not call back into the store for writes.
func (s *KVStore) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLedger).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(append([]byte(nil), k...), append([]byte(nil), v...)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the database file.
func (s *KVStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

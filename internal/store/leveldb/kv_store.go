// Package leveldb is the embedded default backend for the ledger's flat key
// space.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/alanyoungcy/amby/internal/domain"
)

// KVStore implements domain.KVStore on a LevelDB database.
type KVStore struct {
	db   *leveldb.DB
	sync bool
}

// Open creates or opens a LevelDB database at path. Writes are fsynced.
func Open(path string) (*KVStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", path, err)
	}
	return &KVStore{db: db, sync: true}, nil
}

// OpenMemory opens a database held entirely in memory.
func OpenMemory() (*KVStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open memory: %w", err)
	}
	return &KVStore{db: db}, nil
}

func (s *KVStore) writeOpts() *opt.WriteOptions {
	return &opt.WriteOptions{Sync: s.sync}
}

// Get returns the value stored under key.
func (s *KVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb: get: %w", err)
	}
	return v, nil
}

// Put stores a single value.
func (s *KVStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put(key, value, s.writeOpts()); err != nil {
		return fmt.Errorf("leveldb: put: %w", err)
	}
	return nil
}

// Apply commits writes as a single LevelDB batch.
func (s *KVStore) Apply(ctx context.Context, writes []domain.KVWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, w := range writes {
		batch.Put(w.Key, w.Value)
	}
	if err := s.db.Write(batch, s.writeOpts()); err != nil {
		return fmt.Errorf("leveldb: apply %d writes: %w", len(writes), err)
	}
	return nil
}

// Scan iterates keys with prefix in ascending order.
func (s *KVStore) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The iterator reuses its buffers between steps.
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("leveldb: scan: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

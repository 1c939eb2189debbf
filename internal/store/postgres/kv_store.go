package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/amby/internal/domain"
)

// KVStore implements domain.KVStore on the ledger_kv table so several
// processes can share one ledger.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore creates a KVStore backed by pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

const upsertKV = `INSERT INTO ledger_kv (k, v) VALUES ($1, $2)
	ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = NOW()`

// Get returns the value stored under key.
func (s *KVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var v []byte
	err := s.pool.QueryRow(ctx, `SELECT v FROM ledger_kv WHERE k = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: kv get: %w", err)
	}
	return v, nil
}

// Put upserts a single value.
func (s *KVStore) Put(ctx context.Context, key, value []byte) error {
	if _, err := s.pool.Exec(ctx, upsertKV, key, value); err != nil {
		return fmt.Errorf("postgres: kv put: %w", err)
	}
	return nil
}

// Apply upserts every write inside one transaction.
func (s *KVStore) Apply(ctx context.Context, writes []domain.KVWrite) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, w := range writes {
			batch.Queue(upsertKV, w.Key, w.Value)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: kv apply %d writes: %w", len(writes), err)
	}
	return nil
}

// Scan visits keys starting with prefix in ascending byte order.
func (s *KVStore) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT k, v FROM ledger_kv WHERE substring(k FROM 1 FOR $2::int) = $1 ORDER BY k`,
		prefix, len(prefix))
	if err != nil {
		return fmt.Errorf("postgres: kv scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("postgres: kv scan row: %w", err)
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: kv scan rows: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to Client.
func (s *KVStore) Close() error { return nil }

package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
)

func openTemp(t *testing.T) *KVStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKVStoreGetMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get(context.Background(), []byte("absent"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKVStoreApplyAndScan(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.Put(ctx, []byte("aa"), []byte("before")))
	require.NoError(t, s.Apply(ctx, []domain.KVWrite{
		{Key: []byte("mi\x00\x02"), Value: []byte("b")},
		{Key: []byte("mi\x00\x01"), Value: []byte("a")},
		{Key: []byte("ms\x00\x01"), Value: []byte("x")},
	}))

	var values []string
	require.NoError(t, s.Scan(ctx, []byte("mi"), func(_, value []byte) error {
		values = append(values, string(value))
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, values)

	v, err := s.Get(ctx, []byte("aa"))
	require.NoError(t, err)
	assert.Equal(t, "before", string(v))
}

func TestKVStoreCancelledContext(t *testing.T) {
	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Apply(ctx, []domain.KVWrite{{Key: []byte("k"), Value: []byte("v")}}), context.Canceled)
}

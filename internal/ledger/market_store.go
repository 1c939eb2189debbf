package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/amby/internal/domain"
)

// MarketStore reads and encodes market records and the meta keys in the
// flat KV namespace. It never commits writes itself; callers collect the
// returned KVWrite values into one atomic batch.
type MarketStore struct {
	kv domain.KVStore
}

// NewMarketStore creates a MarketStore over kv.
func NewMarketStore(kv domain.KVStore) *MarketStore {
	return &MarketStore{kv: kv}
}

// Count returns the last allocated market id, or 0 before the first market.
func (s *MarketStore) Count(ctx context.Context) (uint64, error) {
	raw, err := s.kv.Get(ctx, keyCount)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read count: %w", err)
	}
	return decodeUint64(raw)
}

// Info returns the immutable part of market id.
func (s *MarketStore) Info(ctx context.Context, id uint64) (domain.MarketInfo, error) {
	raw, err := s.kv.Get(ctx, infoKey(id))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.MarketInfo{}, fmt.Errorf("ledger: market %d: %w", id, domain.ErrMarketNotFound)
	}
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("ledger: read info %d: %w", id, err)
	}
	return decodeInfo(raw)
}

// State returns the mutable totals of market id.
func (s *MarketStore) State(ctx context.Context, id uint64) (domain.MarketState, error) {
	raw, err := s.kv.Get(ctx, stateKey(id))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.MarketState{}, fmt.Errorf("ledger: market %d: %w", id, domain.ErrMarketNotFound)
	}
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("ledger: read state %d: %w", id, err)
	}
	return decodeState(raw)
}

// Load returns the full snapshot of market id.
func (s *MarketStore) Load(ctx context.Context, id uint64) (domain.Market, error) {
	info, err := s.Info(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	state, err := s.State(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	return domain.Market{ID: id, MarketInfo: info, MarketState: state}, nil
}

// Owner returns the bootstrap owner, or ErrNotFound if none is recorded.
func (s *MarketStore) Owner(ctx context.Context) (domain.Account, error) {
	raw, err := s.kv.Get(ctx, keyOwner)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger: read owner: %w", err)
	}
	if len(raw) != accountLen {
		return domain.Account{}, fmt.Errorf("ledger: owner value has %d bytes, want %d", len(raw), accountLen)
	}
	return common.BytesToAddress(raw), nil
}

// Paused reports the stored paused flag. An absent flag reads as false.
func (s *MarketStore) Paused(ctx context.Context) (bool, error) {
	raw, err := s.kv.Get(ctx, keyPaused)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: read paused: %w", err)
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

// createWrites returns the batch that brings market id into existence:
// the bumped counter, the info record and a zeroed open state.
func (s *MarketStore) createWrites(id uint64, info domain.MarketInfo) ([]domain.KVWrite, error) {
	infoRaw, err := encodeInfo(info)
	if err != nil {
		return nil, err
	}
	state := domain.MarketState{Status: domain.MarketStatusOpen}
	return []domain.KVWrite{
		{Key: keyCount, Value: encodeUint64(id)},
		{Key: infoKey(id), Value: infoRaw},
		{Key: stateKey(id), Value: encodeState(&state)},
	}, nil
}

// bootstrapWrites records owner and the initial meta values.
func (s *MarketStore) bootstrapWrites(owner domain.Account, haveCount bool) []domain.KVWrite {
	writes := []domain.KVWrite{
		{Key: keyOwner, Value: owner.Bytes()},
		{Key: keyPaused, Value: []byte{0}},
	}
	if !haveCount {
		writes = append(writes, domain.KVWrite{Key: keyCount, Value: encodeUint64(0)})
	}
	return writes
}

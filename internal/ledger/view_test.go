package ledger

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
)

func TestPotentialRewardEmptyMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createMarket(t)

	// A lone staker would take the whole pool.
	reward, err := h.engine.PotentialReward(ctx, id, domain.OutcomeYes, uint256.NewInt(50))
	require.NoError(t, err)
	assert.Equal(t, uint64(50), reward.Uint64())

	_, err = h.engine.PotentialReward(ctx, id, domain.OutcomeYes, uint256.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)
}

func TestPotentialRewardErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createMarket(t)

	_, err := h.engine.PotentialReward(ctx, id, 7, uint256.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = h.engine.PotentialReward(ctx, 42, domain.OutcomeNo, uint256.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	h.clock.Set(testStart + testWindow)
	_, err = h.engine.PotentialReward(ctx, id, domain.OutcomeNo, uint256.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrMarketExpired)
}

func TestPotentialRewardDoesNotWrite(t *testing.T) {
	h := newHarness(t)
	id := h.createMarket(t)
	_, err := h.stake(t, id, bob, domain.OutcomeNo, 500, testStart)
	require.NoError(t, err)
	before := h.dump(t)

	reward, err := h.engine.PotentialReward(context.Background(), id, domain.OutcomeNo, uint256.NewInt(500))
	require.NoError(t, err)
	// Same arrival time and amount: the new stake would own half the points.
	assert.Equal(t, uint64(500), reward.Uint64())
	assert.Equal(t, before, h.dump(t))
}

func TestViewsOnMissingMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.TotalValueLocked(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = h.engine.TotalPoints(ctx, 1, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = h.engine.StartTime(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = h.engine.EndTime(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = h.engine.Position(ctx, 1, bob)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = h.engine.HasClaimed(ctx, 1, bob)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestWindowAccessors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createMarket(t)

	start, err := h.engine.StartTime(ctx, id)
	require.NoError(t, err)
	end, err := h.engine.EndTime(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testStart, start)
	assert.Equal(t, testStart+testWindow, end)
}

func TestHasClaimedReadsMarker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createMarket(t)

	claimed, err := h.engine.HasClaimed(ctx, id, bob)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, h.kv.Put(ctx, claimedKey(id, bob), []byte{1}))
	claimed, err = h.engine.HasClaimed(ctx, id, bob)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = h.engine.HasClaimed(ctx, id, carol)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestListMarkets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		h.createMarket(t)
	}

	all, err := h.engine.ListMarkets(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, uint64(i+1), m.ID)
	}

	page, err := h.engine.ListMarkets(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, uint64(3), page[1].ID)

	empty, err := h.engine.ListMarkets(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListMarketsOrdersPastByteBoundary(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 300; i++ {
		h.createMarket(t)
	}
	page, err := h.engine.ListMarkets(context.Background(), 254, 4)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, []uint64{255, 256, 257, 258}, []uint64{page[0].ID, page[1].ID, page[2].ID, page[3].ID})
}

// scanCountingKV counts Scan calls on the wrapped store.
type scanCountingKV struct {
	domain.KVStore
	scans int
}

func (s *scanCountingKV) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	s.scans++
	return s.KVStore.Scan(ctx, prefix, fn)
}

func TestListMarketsLoadsPageDirectly(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 20; i++ {
		h.createMarket(t)
	}
	kv := &scanCountingKV{KVStore: h.kv}
	engine := NewEngine(kv, WithClock(h.clock.Now))

	page, err := engine.ListMarkets(context.Background(), 15, 10)
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, uint64(16), page[0].ID)
	assert.Equal(t, uint64(20), page[4].ID)
	assert.Zero(t, kv.scans)
}

func TestScanPositionsSkipsZeroCounters(t *testing.T) {
	h := newHarness(t)
	id := h.createMarket(t)
	_, err := h.stake(t, id, bob, domain.OutcomeYes, 0, testStart)
	require.NoError(t, err)
	_, err = h.stake(t, id, carol, domain.OutcomeNo, 2, testStart)
	require.NoError(t, err)

	var seen []domain.Account
	err = h.engine.ScanPositions(context.Background(), func(_ uint64, account domain.Account, outcome domain.Outcome, points uint256.Int) error {
		seen = append(seen, account)
		assert.Equal(t, domain.OutcomeNo, outcome)
		assert.Equal(t, uint64(72), points.Uint64())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.Account{carol}, seen)
}

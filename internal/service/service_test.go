package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/ledger"
	"github.com/alanyoungcy/amby/internal/store/leveldb"
)

var payer = common.HexToAddress("0x00000000000000000000000000000000000000b0")

type mapCache struct {
	items map[uint64]domain.Market
	gets  int
}

func (c *mapCache) Set(_ context.Context, m domain.Market) error {
	c.items[m.ID] = m
	return nil
}

func (c *mapCache) Get(_ context.Context, id uint64) (domain.Market, error) {
	c.gets++
	m, ok := c.items[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *mapCache) Invalidate(_ context.Context, id uint64) error {
	delete(c.items, id)
	return nil
}

func newEngine(t *testing.T, now time.Time) *ledger.Engine {
	t.Helper()
	kv, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return ledger.NewEngine(kv, ledger.WithClock(func() time.Time { return now }))
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTransferServiceBoundaryChecks(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	eng := newEngine(t, now)
	id, err := eng.CreateMarket(context.Background(), payer, "Q", "", now.Add(time.Hour).UnixMilli())
	require.NoError(t, err)

	svc := NewTransferService(eng, "GAS", quietLogger())
	base := domain.TransferNotification{
		TransferID: common.HexToHash("0xaa"),
		Payer:      payer,
		Asset:      "gas",
		Amount:     *uint256.NewInt(10),
		MarketID:   id,
		Outcome:    domain.OutcomeYes,
	}

	receipt, err := svc.HandleTransfer(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, uint64(360), receipt.Points.Uint64())

	wrongAsset := base
	wrongAsset.Asset = "NEO"
	_, err = svc.HandleTransfer(context.Background(), wrongAsset)
	assert.ErrorIs(t, err, domain.ErrUnsupportedAsset)

	zero := base
	zero.Amount = uint256.Int{}
	_, err = svc.HandleTransfer(context.Background(), zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	badOutcome := base
	badOutcome.Outcome = 0
	_, err = svc.HandleTransfer(context.Background(), badOutcome)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	noID := base
	noID.TransferID = domain.TransferID{}
	_, err = svc.HandleTransfer(context.Background(), noID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransfer)

	_, err = svc.HandleTransfer(context.Background(), base)
	assert.ErrorIs(t, err, domain.ErrDuplicateTransfer)

	tvl, err := eng.TotalValueLocked(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tvl.Uint64())
}

func TestMarketServiceUsesCache(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	eng := newEngine(t, now)
	id, err := eng.CreateMarket(context.Background(), payer, "Q", "", now.Add(time.Hour).UnixMilli())
	require.NoError(t, err)

	cache := &mapCache{items: map[uint64]domain.Market{}}
	svc := NewMarketService(eng, cache, quietLogger())

	m, err := svc.GetMarket(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Q", m.Title)
	require.Contains(t, cache.items, id)

	cached := cache.items[id]
	cached.Title = "from cache"
	cache.items[id] = cached
	m, err = svc.GetMarket(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "from cache", m.Title)

	_, err = svc.GetMarket(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestMarketServicePosition(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	eng := newEngine(t, now)
	id, err := eng.CreateMarket(context.Background(), payer, "Q", "", now.Add(time.Hour).UnixMilli())
	require.NoError(t, err)
	_, err = eng.RecordStake(context.Background(), domain.StakeRequest{
		MarketID: id, Payer: payer, Outcome: domain.OutcomeNo, Amount: *uint256.NewInt(2),
	})
	require.NoError(t, err)

	svc := NewMarketService(eng, nil, quietLogger())
	pos, claimed, err := svc.Position(context.Background(), id, payer)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, uint64(72), pos.NoPoints.Uint64())

	start, end, err := svc.Window(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), start)
	assert.Equal(t, now.Add(time.Hour).UnixMilli(), end)
}

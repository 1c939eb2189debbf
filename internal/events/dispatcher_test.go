package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/metrics"
)

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

type memCache struct {
	mu          sync.Mutex
	invalidated []uint64
}

func (c *memCache) Set(context.Context, domain.Market) error { return nil }
func (c *memCache) Get(context.Context, uint64) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (c *memCache) Invalidate(_ context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

type failingNotifier struct{ calls int }

func (n *failingNotifier) NotifyEvent(context.Context, domain.Event) error {
	n.calls++
	return errors.New("offline")
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func stakeEvent() domain.Event {
	payer := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	return domain.Event{
		ID:         "ev-1",
		Type:       domain.EventStakePlaced,
		MarketID:   9,
		Payer:      &payer,
		Outcome:    domain.OutcomeYes,
		Amount:     uint256.NewInt(150),
		OccurredAt: time.Unix(1_700_000_000, 0),
	}
}

func TestDispatcherFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	sub, err := bus.Subscribe(ctx, ChannelStake)
	require.NoError(t, err)

	audit := &memAudit{}
	cache := &memCache{}
	notifier := &failingNotifier{}
	d := NewDispatcher(quietLogger(),
		WithBus(bus), WithAudit(audit), WithCache(cache), WithNotifier(notifier),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Emit(ctx, stakeEvent())

	select {
	case payload := <-sub:
		var got domain.Event
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, uint64(9), got.MarketID)
		assert.Equal(t, "150", got.Amount.Dec())
	case <-time.After(2 * time.Second):
		t.Fatal("no event on bus")
	}

	cancel()
	<-done

	entries, _ := audit.List(context.Background(), domain.ListOpts{})
	require.Len(t, entries, 1)
	assert.Equal(t, "stake_placed", entries[0].Event)
	assert.Equal(t, "150", entries[0].Detail["amount"])
	assert.Equal(t, "yes", entries[0].Detail["outcome"])
	assert.Equal(t, []uint64{9}, cache.invalidated)
	assert.Equal(t, 1, notifier.calls)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	audit := &memAudit{}
	d := NewDispatcher(quietLogger(), WithBuffer(1), WithAudit(audit))

	d.Emit(context.Background(), stakeEvent())
	d.Emit(context.Background(), stakeEvent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)

	entries, _ := audit.List(context.Background(), domain.ListOpts{})
	assert.Len(t, entries, 1)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, ChannelMarket, ChannelFor(domain.EventMarketCreated))
	assert.Equal(t, ChannelStake, ChannelFor(domain.EventStakePlaced))
	assert.Equal(t, ChannelOwner, ChannelFor(domain.EventOwnerSet))
}

func TestLocalBusUnsubscribesOnCancel(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "x")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "x", []byte("hi")))
	assert.Equal(t, []byte("hi"), <-ch)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

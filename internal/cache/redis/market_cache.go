package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/amby/internal/domain"
)

// DefaultMarketTTL bounds how stale a cached snapshot can be if an
// invalidation is lost.
const DefaultMarketTTL = 30 * time.Second

// cachedMarket is the JSON form of domain.Market. Big integers travel as
// decimal strings.
type cachedMarket struct {
	ID             uint64            `json:"id"`
	Info           domain.MarketInfo `json:"info"`
	Status         uint8             `json:"status"`
	PoolYes        string            `json:"pool_yes"`
	PoolNo         string            `json:"pool_no"`
	TotalYesPoints string            `json:"total_yes_points"`
	TotalNoPoints  string            `json:"total_no_points"`
}

func toCached(m domain.Market) cachedMarket {
	return cachedMarket{
		ID:             m.ID,
		Info:           m.MarketInfo,
		Status:         uint8(m.Status),
		PoolYes:        m.PoolYes.Dec(),
		PoolNo:         m.PoolNo.Dec(),
		TotalYesPoints: m.TotalYesPoints.Dec(),
		TotalNoPoints:  m.TotalNoPoints.Dec(),
	}
}

func (c cachedMarket) toDomain() (domain.Market, error) {
	m := domain.Market{ID: c.ID, MarketInfo: c.Info}
	m.Status = domain.MarketStatus(c.Status)
	for _, f := range []struct {
		dst *uint256.Int
		src string
	}{
		{&m.PoolYes, c.PoolYes},
		{&m.PoolNo, c.PoolNo},
		{&m.TotalYesPoints, c.TotalYesPoints},
		{&m.TotalNoPoints, c.TotalNoPoints},
	} {
		if err := f.dst.SetFromDecimal(f.src); err != nil {
			return domain.Market{}, fmt.Errorf("decode %q: %w", f.src, err)
		}
	}
	return m, nil
}

// MarketCache implements domain.MarketCache with one JSON string per market
// under amby:market:{id}.
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache on c. A non-positive ttl uses
// DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(id uint64) string {
	return keyPrefix + "market:" + strconv.FormatUint(id, 10)
}

// Set stores a snapshot of market.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(toCached(market))
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", market.ID, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(market.ID), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %d: %w", market.ID, err)
	}
	return nil
}

// Get returns the cached snapshot, or domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, id uint64) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}
	var c cachedMarket
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	m, err := c.toDomain()
	if err != nil {
		return domain.Market{}, fmt.Errorf("redis: market %d: %w", id, err)
	}
	return m, nil
}

// Invalidate drops the cached snapshot.
func (mc *MarketCache) Invalidate(ctx context.Context, id uint64) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)

// Package service sits between the HTTP layer and the ledger engine: it adds
// the read cache and the transfer boundary checks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

// Ledger is the subset of the engine the services use.
type Ledger interface {
	CreateMarket(ctx context.Context, creator domain.Account, title, description string, endTime int64) (uint64, error)
	RecordStake(ctx context.Context, req domain.StakeRequest) (domain.StakeReceipt, error)
	Market(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, offset, limit int) ([]domain.Market, error)
	MarketCount(ctx context.Context) (uint64, error)
	TotalValueLocked(ctx context.Context, id uint64) (*uint256.Int, error)
	TotalPoints(ctx context.Context, id uint64, outcome domain.Outcome) (*uint256.Int, error)
	PotentialReward(ctx context.Context, id uint64, outcome domain.Outcome, amount *uint256.Int) (*uint256.Int, error)
	Position(ctx context.Context, id uint64, account domain.Account) (domain.Position, error)
	HasClaimed(ctx context.Context, id uint64, account domain.Account) (bool, error)
}

// MarketService serves market reads and creation.
type MarketService struct {
	ledger Ledger
	cache  domain.MarketCache
	logger *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(ledger Ledger, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		ledger: ledger,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarket opens a new market.
func (s *MarketService) CreateMarket(ctx context.Context, creator domain.Account, title, description string, endTime int64) (uint64, error) {
	id, err := s.ledger.CreateMarket(ctx, creator, title, description, endTime)
	if err != nil {
		return 0, fmt.Errorf("market_service: create: %w", err)
	}
	return id, nil
}

// GetMarket returns a market snapshot, from cache when possible.
func (s *MarketService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	if s.cache != nil {
		m, err := s.cache.Get(ctx, id)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "cache get failed",
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := s.ledger.Market(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %d: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets pages through markets in id order.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.ledger.ListMarkets(ctx, opts.Offset, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the number of markets.
func (s *MarketService) Count(ctx context.Context) (uint64, error) {
	n, err := s.ledger.MarketCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return n, nil
}

// TotalValueLocked returns both pools combined.
func (s *MarketService) TotalValueLocked(ctx context.Context, id uint64) (*uint256.Int, error) {
	return s.ledger.TotalValueLocked(ctx, id)
}

// TotalPoints returns the points on one outcome.
func (s *MarketService) TotalPoints(ctx context.Context, id uint64, outcome domain.Outcome) (*uint256.Int, error) {
	return s.ledger.TotalPoints(ctx, id, outcome)
}

// PotentialReward estimates the payout of a stake placed now.
func (s *MarketService) PotentialReward(ctx context.Context, id uint64, outcome domain.Outcome, amount *uint256.Int) (*uint256.Int, error) {
	return s.ledger.PotentialReward(ctx, id, outcome, amount)
}

// Window returns the start and end time of a market.
func (s *MarketService) Window(ctx context.Context, id uint64) (int64, int64, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return m.StartTime, m.EndTime, nil
}

// Position returns an account's points on a market along with its claim
// marker.
func (s *MarketService) Position(ctx context.Context, id uint64, account domain.Account) (domain.Position, bool, error) {
	pos, err := s.ledger.Position(ctx, id, account)
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("market_service: position: %w", err)
	}
	claimed, err := s.ledger.HasClaimed(ctx, id, account)
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("market_service: claimed: %w", err)
	}
	return pos, claimed, nil
}

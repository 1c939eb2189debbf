package ledger

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/leverage"
)

// rlock takes the read lock of market id after confirming it exists.
func (e *Engine) rlock(ctx context.Context, id uint64) (func(), error) {
	if err := e.exists(ctx, id); err != nil {
		return nil, err
	}
	mu := e.marketLock(id)
	mu.RLock()
	return mu.RUnlock, nil
}

// MarketCount returns the number of markets ever created.
func (e *Engine) MarketCount(ctx context.Context) (uint64, error) {
	return e.markets.Count(ctx)
}

// Market returns a consistent snapshot of market id.
func (e *Engine) Market(ctx context.Context, id uint64) (domain.Market, error) {
	unlock, err := e.rlock(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()
	return e.markets.Load(ctx, id)
}

// ListMarkets returns up to limit markets in ascending id order, skipping
// the first offset. A non-positive limit returns every remaining market.
// Ids run from 1 to the counter without gaps, so a page is loaded directly
// from offset+1 without scanning earlier records.
func (e *Engine) ListMarkets(ctx context.Context, offset, limit int) ([]domain.Market, error) {
	count, err := e.markets.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list markets: %w", err)
	}
	if offset < 0 {
		offset = 0
	}
	if uint64(offset) >= count {
		return []domain.Market{}, nil
	}
	last := count
	if limit > 0 && uint64(limit) < count-uint64(offset) {
		last = uint64(offset) + uint64(limit)
	}

	out := make([]domain.Market, 0, last-uint64(offset))
	for id := uint64(offset) + 1; id <= last; id++ {
		m, err := e.Market(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// TotalValueLocked returns PoolYes + PoolNo.
func (e *Engine) TotalValueLocked(ctx context.Context, id uint64) (*uint256.Int, error) {
	unlock, err := e.rlock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := e.markets.State(ctx, id)
	if err != nil {
		return nil, err
	}
	tvl, overflow := state.TVL()
	if overflow {
		return nil, fmt.Errorf("ledger: tvl of market %d: %w", id, domain.ErrOverflow)
	}
	return tvl, nil
}

// TotalPoints returns the accumulated points on one outcome.
func (e *Engine) TotalPoints(ctx context.Context, id uint64, outcome domain.Outcome) (*uint256.Int, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("ledger: total points: outcome %d: %w", uint8(outcome), domain.ErrInvalidOutcome)
	}
	unlock, err := e.rlock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := e.markets.State(ctx, id)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(state.Points(outcome)), nil
}

// PotentialReward estimates the pari-mutuel payout of staking amount on
// outcome now, if the market resolved in that outcome's favour immediately:
//
//	(pool + amount) * newPoints / (totalPoints + newPoints)
//
// The result is a live estimate, not a claimable amount.
func (e *Engine) PotentialReward(ctx context.Context, id uint64, outcome domain.Outcome, amount *uint256.Int) (*uint256.Int, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("ledger: potential reward: outcome %d: %w", uint8(outcome), domain.ErrInvalidOutcome)
	}
	unlock, err := e.rlock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := e.markets.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	newPoints, err := leverage.ComputePoints(m.StartTime, m.EndTime, e.nowMillis(), amount)
	if err != nil {
		return nil, err
	}

	pool, overflow := new(uint256.Int).AddOverflow(m.Pool(outcome), amount)
	if overflow {
		return nil, fmt.Errorf("ledger: potential reward: pool: %w", domain.ErrOverflow)
	}
	denom, overflow := new(uint256.Int).AddOverflow(m.Points(outcome), newPoints)
	if overflow {
		return nil, fmt.Errorf("ledger: potential reward: points: %w", domain.ErrOverflow)
	}
	if denom.IsZero() {
		return nil, fmt.Errorf("ledger: potential reward on market %d: %w", id, domain.ErrDivisionByZero)
	}
	// The quotient never exceeds pool because newPoints <= denom, so only
	// the 512-bit intermediate product needs care.
	reward, _ := new(uint256.Int).MulDivOverflow(pool, newPoints, denom)
	return reward, nil
}

// StartTime returns the creation time of market id in Unix milliseconds.
func (e *Engine) StartTime(ctx context.Context, id uint64) (int64, error) {
	m, err := e.Market(ctx, id)
	if err != nil {
		return 0, err
	}
	return m.StartTime, nil
}

// EndTime returns the staking deadline of market id in Unix milliseconds.
func (e *Engine) EndTime(ctx context.Context, id uint64) (int64, error) {
	m, err := e.Market(ctx, id)
	if err != nil {
		return 0, err
	}
	return m.EndTime, nil
}

// Position returns the points account holds on both outcomes of market id.
func (e *Engine) Position(ctx context.Context, id uint64, account domain.Account) (domain.Position, error) {
	unlock, err := e.rlock(ctx, id)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()
	return e.stakes.Position(ctx, id, account)
}

// HasClaimed reports the reserved claim marker for (id, account).
func (e *Engine) HasClaimed(ctx context.Context, id uint64, account domain.Account) (bool, error) {
	if err := e.exists(ctx, id); err != nil {
		return false, err
	}
	return e.stakes.HasClaimed(ctx, id, account)
}

// Owner returns the bootstrap owner.
func (e *Engine) Owner(ctx context.Context) (domain.Account, error) {
	return e.markets.Owner(ctx)
}

// ScanPositions walks every non-zero position record in key order, skipping
// zero counters. It takes
// no locks, so a scan that overlaps stakes may see some of them.
func (e *Engine) ScanPositions(ctx context.Context, fn func(id uint64, account domain.Account, outcome domain.Outcome, points uint256.Int) error) error {
	return e.stakes.ScanPositions(ctx, fn)
}

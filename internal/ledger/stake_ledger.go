package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

// StakeLedger owns the per-user point counters and the reserved claim
// markers.
type StakeLedger struct {
	kv domain.KVStore
}

// NewStakeLedger creates a StakeLedger over kv.
func NewStakeLedger(kv domain.KVStore) *StakeLedger {
	return &StakeLedger{kv: kv}
}

// Points returns the accumulated points of account on one outcome. An
// account that never staked has zero points.
func (l *StakeLedger) Points(ctx context.Context, id uint64, account domain.Account, outcome domain.Outcome) (uint256.Int, error) {
	raw, err := l.kv.Get(ctx, positionKey(id, account, outcome))
	if errors.Is(err, domain.ErrNotFound) {
		return uint256.Int{}, nil
	}
	if err != nil {
		return uint256.Int{}, fmt.Errorf("ledger: read position: %w", err)
	}
	return decodeAmount(raw)
}

// Position returns both outcome counters for account.
func (l *StakeLedger) Position(ctx context.Context, id uint64, account domain.Account) (domain.Position, error) {
	pos := domain.Position{MarketID: id, Account: account}
	var err error
	if pos.YesPoints, err = l.Points(ctx, id, account, domain.OutcomeYes); err != nil {
		return domain.Position{}, err
	}
	if pos.NoPoints, err = l.Points(ctx, id, account, domain.OutcomeNo); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

// HasClaimed reports whether the claim marker for (id, account) is set.
// Nothing in this package writes the marker.
func (l *StakeLedger) HasClaimed(ctx context.Context, id uint64, account domain.Account) (bool, error) {
	raw, err := l.kv.Get(ctx, claimedKey(id, account))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: read claim marker: %w", err)
	}
	return len(raw) > 0 && raw[0] != 0, nil
}

// ScanPositions visits every non-zero position counter in key order.
// Counters left at zero by zero-amount stakes are skipped.
func (l *StakeLedger) ScanPositions(ctx context.Context, fn func(id uint64, account domain.Account, outcome domain.Outcome, points uint256.Int) error) error {
	return l.kv.Scan(ctx, prefixPosition, func(key, value []byte) error {
		id, acct, outcome, ok := positionFromKey(key)
		if !ok {
			return nil
		}
		pts, err := decodeAmount(value)
		if err != nil {
			return err
		}
		if pts.IsZero() {
			return nil
		}
		return fn(id, acct, outcome, pts)
	})
}

// stakeWrites applies a stake of amount earning points to state in place and
// returns the writes that persist it. state is only modified when no
// addition overflows.
func (l *StakeLedger) stakeWrites(ctx context.Context, id uint64, state *domain.MarketState, req domain.StakeRequest, points *uint256.Int) ([]domain.KVWrite, error) {
	pool, overflow := new(uint256.Int).AddOverflow(state.Pool(req.Outcome), &req.Amount)
	if overflow {
		return nil, fmt.Errorf("ledger: %s pool of market %d: %w", req.Outcome, id, domain.ErrOverflow)
	}
	total, overflow := new(uint256.Int).AddOverflow(state.Points(req.Outcome), points)
	if overflow {
		return nil, fmt.Errorf("ledger: %s points of market %d: %w", req.Outcome, id, domain.ErrOverflow)
	}

	current, err := l.Points(ctx, id, req.Payer, req.Outcome)
	if err != nil {
		return nil, err
	}
	userPoints, overflow := new(uint256.Int).AddOverflow(&current, points)
	if overflow {
		return nil, fmt.Errorf("ledger: position of %s: %w", req.Payer.Hex(), domain.ErrOverflow)
	}

	state.Pool(req.Outcome).Set(pool)
	state.Points(req.Outcome).Set(total)

	return []domain.KVWrite{
		{Key: stateKey(id), Value: encodeState(state)},
		{Key: positionKey(id, req.Payer, req.Outcome), Value: encodeAmount(userPoints)},
	}, nil
}

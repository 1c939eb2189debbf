// Package leverage converts a stake into time-decayed points. A stake placed
// at market open earns MaxLeverage times its amount; the multiplier decays
// linearly toward 1 as the deadline approaches. All arithmetic is integer so
// independent evaluators always agree on the result.
package leverage

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

// MaxLeverage is the multiplier earned by a stake placed at market open.
const MaxLeverage = 36

// Multiplier returns ceil((end-now) * MaxLeverage / (end-start)).
//
// Times are Unix milliseconds. now is clamped to start when a clock reads
// earlier than the market opened, so the result is always in [1, MaxLeverage].
func Multiplier(start, end, now int64) (uint64, error) {
	if end <= start {
		return 0, fmt.Errorf("leverage: window [%d, %d): %w", start, end, domain.ErrInvalidWindow)
	}
	if now >= end {
		return 0, fmt.Errorf("leverage: time %d at or after end %d: %w", now, end, domain.ErrMarketExpired)
	}
	if now < start {
		now = start
	}

	// Differences are taken in uint64 so extreme int64 inputs cannot wrap.
	remaining := uint256.NewInt(uint64(end) - uint64(now))
	total := uint256.NewInt(uint64(end) - uint64(start))

	num := new(uint256.Int).Mul(remaining, uint256.NewInt(MaxLeverage))
	num.Add(num, total)
	num.Sub(num, uint256.NewInt(1))
	lev := num.Div(num, total)

	return lev.Uint64(), nil
}

// ComputePoints returns amount * Multiplier(start, end, now).
func ComputePoints(start, end, now int64, amount *uint256.Int) (*uint256.Int, error) {
	lev, err := Multiplier(start, end, now)
	if err != nil {
		return nil, err
	}
	return Scale(amount, lev)
}

// Scale returns amount * lev for a multiplier already obtained from
// Multiplier.
func Scale(amount *uint256.Int, lev uint64) (*uint256.Int, error) {
	points, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(lev))
	if overflow {
		return nil, fmt.Errorf("leverage: %s x %d: %w", amount.Dec(), lev, domain.ErrOverflow)
	}
	return points, nil
}

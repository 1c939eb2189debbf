package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus uint8

const (
	MarketStatusOpen        MarketStatus = 0
	MarketStatusResolvedYes MarketStatus = 1
	MarketStatusResolvedNo  MarketStatus = 2
)

// String returns the lowercase wire name of the status.
func (s MarketStatus) String() string {
	switch s {
	case MarketStatusOpen:
		return "open"
	case MarketStatusResolvedYes:
		return "resolved_yes"
	case MarketStatusResolvedNo:
		return "resolved_no"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Outcome is one of the two mutually exclusive results of a market. The
// numeric values are part of the transfer payload format (1 = YES, 2 = NO).
type Outcome uint8

const (
	OutcomeYes Outcome = 1
	OutcomeNo  Outcome = 2
)

// Valid reports whether o is YES or NO.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// String returns "yes", "no", or a diagnostic for out-of-range values.
func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "yes"
	case OutcomeNo:
		return "no"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(o))
	}
}

// ParseOutcome accepts "yes"/"no" (any case) or the numeric forms "1"/"2".
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "1":
		return OutcomeYes, nil
	case "no", "2":
		return OutcomeNo, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// MarketInfo holds the immutable part of a market, written once at creation.
// Times are Unix milliseconds.
type MarketInfo struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Creator     Account `json:"creator"`
	StartTime   int64   `json:"start_time"`
	EndTime     int64   `json:"end_time"`
}

// MarketState holds the mutable accounting totals of a market.
type MarketState struct {
	Status         MarketStatus
	PoolYes        uint256.Int
	PoolNo         uint256.Int
	TotalYesPoints uint256.Int
	TotalNoPoints  uint256.Int
}

// Pool returns the raw deposited amount for the given outcome.
func (s *MarketState) Pool(o Outcome) *uint256.Int {
	if o == OutcomeYes {
		return &s.PoolYes
	}
	return &s.PoolNo
}

// Points returns the accumulated leveraged score for the given outcome.
func (s *MarketState) Points(o Outcome) *uint256.Int {
	if o == OutcomeYes {
		return &s.TotalYesPoints
	}
	return &s.TotalNoPoints
}

// TVL returns PoolYes + PoolNo. The boolean reports overflow.
func (s *MarketState) TVL() (*uint256.Int, bool) {
	return new(uint256.Int).AddOverflow(&s.PoolYes, &s.PoolNo)
}

// Market is a consistent snapshot of a binary-outcome staking market.
type Market struct {
	ID uint64
	MarketInfo
	MarketState
}

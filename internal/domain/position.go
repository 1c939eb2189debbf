package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account identifies a staker or market creator. It is a 20-byte hash so it
// composes into fixed-width storage keys.
type Account = common.Address

// ParseAccount parses a 0x-prefixed (or bare) 40-hex-digit account string.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	return common.HexToAddress(s), nil
}

// TransferID is the hash of the external transaction that carried a stake.
// The ledger records each one at most once.
type TransferID = common.Hash

// ParseTransferID parses a 0x-prefixed 64-hex-digit transaction hash. The
// zero hash is rejected.
func ParseTransferID(s string) (TransferID, error) {
	s = strings.TrimSpace(s)
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil || len(raw) != common.HashLength {
		return TransferID{}, fmt.Errorf("%w: %q", ErrInvalidTransfer, s)
	}
	id := common.BytesToHash(raw)
	if id == (TransferID{}) {
		return TransferID{}, fmt.Errorf("%w: zero hash", ErrInvalidTransfer)
	}
	return id, nil
}

// Position is a user's accumulated points on both outcomes of one market.
type Position struct {
	MarketID  uint64
	Account   Account
	YesPoints uint256.Int
	NoPoints  uint256.Int
}

// StakeRequest is a validated instruction to record a stake. Amount has
// already been credited by the transfer layer. A non-zero TransferID is
// recorded with the stake and a second request carrying it is refused.
type StakeRequest struct {
	MarketID   uint64
	Payer      Account
	Outcome    Outcome
	Amount     uint256.Int
	TransferID TransferID
}

// StakeReceipt describes an accepted stake.
type StakeReceipt struct {
	MarketID    uint64
	Payer       Account
	Outcome     Outcome
	Amount      uint256.Int
	Points      uint256.Int
	Leverage    uint64
	ArrivalTime int64
	TransferID  TransferID
}

package ledger

import (
	"encoding/binary"

	"github.com/alanyoungcy/amby/internal/domain"
)

// Key layout. Every composite key is a fixed-width concatenation so that no
// two (market, account, outcome) tuples can encode to the same bytes.
//
//	_count                          -> uint64 big-endian, last allocated id
//	_owner                          -> 20-byte account
//	_paused                         -> 1 byte
//	mi | id(8)                      -> JSON MarketInfo
//	ms | id(8)                      -> 129-byte MarketState
//	up | id(8) | account(20) | o(1) -> 32-byte points
//	cl | id(8) | account(20)        -> 1 byte claimed marker
//	tx | hash(32)                   -> uint64 big-endian, market id
var (
	keyCount  = []byte("_count")
	keyOwner  = []byte("_owner")
	keyPaused = []byte("_paused")

	prefixInfo     = []byte("mi")
	prefixState    = []byte("ms")
	prefixPosition = []byte("up")
	prefixClaimed  = []byte("cl")
	prefixTransfer = []byte("tx")
)

const (
	idLen      = 8
	accountLen = 20
)

func marketKey(prefix []byte, id uint64) []byte {
	k := make([]byte, len(prefix)+idLen)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], id)
	return k
}

func infoKey(id uint64) []byte  { return marketKey(prefixInfo, id) }
func stateKey(id uint64) []byte { return marketKey(prefixState, id) }

func positionKey(id uint64, account domain.Account, outcome domain.Outcome) []byte {
	k := make([]byte, 0, len(prefixPosition)+idLen+accountLen+1)
	k = append(k, marketKey(prefixPosition, id)...)
	k = append(k, account.Bytes()...)
	return append(k, byte(outcome))
}

func claimedKey(id uint64, account domain.Account) []byte {
	k := make([]byte, 0, len(prefixClaimed)+idLen+accountLen)
	k = append(k, marketKey(prefixClaimed, id)...)
	return append(k, account.Bytes()...)
}

func transferKey(id domain.TransferID) []byte {
	k := make([]byte, 0, len(prefixTransfer)+len(id))
	k = append(k, prefixTransfer...)
	return append(k, id.Bytes()...)
}

// marketIDFromKey extracts the id from an mi/ms/up/cl key.
func marketIDFromKey(prefix, key []byte) (uint64, bool) {
	if len(key) < len(prefix)+idLen {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+idLen]), true
}

// positionFromKey splits a position key into its account and outcome.
func positionFromKey(key []byte) (uint64, domain.Account, domain.Outcome, bool) {
	if len(key) != len(prefixPosition)+idLen+accountLen+1 {
		return 0, domain.Account{}, 0, false
	}
	id, _ := marketIDFromKey(prefixPosition, key)
	var acct domain.Account
	off := len(prefixPosition) + idLen
	copy(acct[:], key[off:off+accountLen])
	return id, acct, domain.Outcome(key[len(key)-1]), true
}

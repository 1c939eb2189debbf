package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

const stateLen = 1 + 4*32

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("ledger: counter value has %d bytes, want 8", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeAmount(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func decodeAmount(b []byte) (uint256.Int, error) {
	var v uint256.Int
	if len(b) != 32 {
		return v, fmt.Errorf("ledger: amount value has %d bytes, want 32", len(b))
	}
	v.SetBytes32(b)
	return v, nil
}

func encodeInfo(info domain.MarketInfo) ([]byte, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal market info: %w", err)
	}
	return data, nil
}

func decodeInfo(b []byte) (domain.MarketInfo, error) {
	var info domain.MarketInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("ledger: unmarshal market info: %w", err)
	}
	return info, nil
}

// encodeState packs the status byte followed by poolYes, poolNo,
// totalYesPoints and totalNoPoints as 32-byte big-endian integers.
func encodeState(s *domain.MarketState) []byte {
	b := make([]byte, 0, stateLen)
	b = append(b, byte(s.Status))
	for _, v := range []*uint256.Int{&s.PoolYes, &s.PoolNo, &s.TotalYesPoints, &s.TotalNoPoints} {
		w := v.Bytes32()
		b = append(b, w[:]...)
	}
	return b
}

func decodeState(b []byte) (domain.MarketState, error) {
	var s domain.MarketState
	if len(b) != stateLen {
		return s, fmt.Errorf("ledger: market state has %d bytes, want %d", len(b), stateLen)
	}
	s.Status = domain.MarketStatus(b[0])
	off := 1
	for _, v := range []*uint256.Int{&s.PoolYes, &s.PoolNo, &s.TotalYesPoints, &s.TotalNoPoints} {
		v.SetBytes32(b[off : off+32])
		off += 32
	}
	return s, nil
}

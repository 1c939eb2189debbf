package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
)

func TestPositionKeyIsFixedWidth(t *testing.T) {
	k := positionKey(258, bob, domain.OutcomeNo)
	require.Len(t, k, 2+8+20+1)

	id, acct, outcome, ok := positionFromKey(k)
	require.True(t, ok)
	assert.Equal(t, uint64(258), id)
	assert.Equal(t, bob, acct)
	assert.Equal(t, domain.OutcomeNo, outcome)

	assert.NotEqual(t, positionKey(1, bob, domain.OutcomeYes), positionKey(1, bob, domain.OutcomeNo))
	assert.NotEqual(t, positionKey(1, bob, domain.OutcomeYes), positionKey(256, bob, domain.OutcomeYes))
	assert.Len(t, claimedKey(1, bob), 2+8+20)
}

func TestStateCodec(t *testing.T) {
	in := domain.MarketState{Status: domain.MarketStatusResolvedYes}
	in.PoolYes.SetUint64(150)
	in.PoolNo.SetAllOne()
	in.TotalYesPoints.SetUint64(4400)
	in.TotalNoPoints.Lsh(uint256.NewInt(1), 200)

	raw := encodeState(&in)
	require.Len(t, raw, stateLen)

	out, err := decodeState(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeState(raw[:10])
	assert.Error(t, err)
}

package crypto

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	assert.Error(t, err)
	_, err = EncryptKey("zz", "pw")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
}

func TestOwnerAddressFromRawAndFile(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	want := ethcrypto.PubkeyToAddress(key.PublicKey)

	got, err := OwnerAddress(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "owner.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = OwnerAddress(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = OwnerAddress(KeyConfig{})
	assert.Error(t, err)
}

func TestTransferAuthVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	auth := NewTransferAuth("s3cret", time.Minute)
	auth.now = func() time.Time { return now }
	body := []byte(`{"payer":"0x01"}`)

	h := auth.Headers(body)
	require.NoError(t, auth.Verify(h[HeaderTimestamp], h[HeaderSignature], body))

	err := auth.Verify(h[HeaderTimestamp], h[HeaderSignature], []byte(`{"payer":"0x02"}`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	stale := now.Add(-2 * time.Minute).Unix()
	err = auth.Verify(strconv.FormatInt(stale, 10), auth.Sign(stale, body), body)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.ErrorIs(t, auth.Verify("nope", h[HeaderSignature], body), domain.ErrUnauthorized)
	assert.ErrorIs(t, auth.Verify(h[HeaderTimestamp], "!!", body), domain.ErrUnauthorized)

	other := NewTransferAuth("other", time.Minute)
	other.now = auth.now
	oh := other.Headers(body)
	assert.ErrorIs(t, auth.Verify(oh[HeaderTimestamp], oh[HeaderSignature], body), domain.ErrUnauthorized)
}

func TestTransferAuthDisabled(t *testing.T) {
	auth := NewTransferAuth("", 0)
	assert.False(t, auth.Enabled())
	assert.NoError(t, auth.Verify("", "", nil))
}

package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/amby/internal/domain"
)

// Header names carried by signed transfer notifications.
const (
	HeaderTimestamp = "X-Amby-Timestamp"
	HeaderSignature = "X-Amby-Signature"
)

// DefaultMaxSkew is how far a signed timestamp may drift from local time.
const DefaultMaxSkew = 5 * time.Minute

// TransferAuth signs and verifies transfer notification bodies. The
// signature is base64(HMAC-SHA256(secret, timestamp + body)) with the
// timestamp in Unix seconds.
type TransferAuth struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewTransferAuth returns a TransferAuth for secret. A non-positive maxSkew
// uses DefaultMaxSkew.
func NewTransferAuth(secret string, maxSkew time.Duration) *TransferAuth {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &TransferAuth{secret: []byte(secret), maxSkew: maxSkew, now: time.Now}
}

// Enabled reports whether a secret is configured. Without one every request
// is accepted.
func (a *TransferAuth) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Sign returns the signature for body at unixTS.
func (a *TransferAuth) Sign(unixTS int64, body []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(strconv.FormatInt(unixTS, 10)))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Headers returns the header values a sender attaches to body right now.
func (a *TransferAuth) Headers(body []byte) map[string]string {
	ts := a.now().Unix()
	return map[string]string{
		HeaderTimestamp: strconv.FormatInt(ts, 10),
		HeaderSignature: a.Sign(ts, body),
	}
}

// Verify checks the timestamp window and the signature. Failures wrap
// domain.ErrUnauthorized.
func (a *TransferAuth) Verify(timestamp, signature string, body []byte) error {
	if !a.Enabled() {
		return nil
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: timestamp %q: %w", timestamp, domain.ErrUnauthorized)
	}
	skew := a.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.maxSkew {
		return fmt.Errorf("crypto: timestamp skew %s exceeds %s: %w", skew, a.maxSkew, domain.ErrUnauthorized)
	}

	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("crypto: signature encoding: %w", domain.ErrUnauthorized)
	}
	want, _ := base64.StdEncoding.DecodeString(a.Sign(ts, body))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("crypto: signature mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

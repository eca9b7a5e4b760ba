package signature

import (
	"crypto/hmac"
	"errors"
	"strconv"
	"time"
)

// Errors returned by VerifyRequest.
var (
	ErrMissingHeader     = errors.New("signature: missing signature or timestamp")
	ErrInvalidTimestamp  = errors.New("signature: invalid timestamp")
	ErrTimestampExpired  = errors.New("signature: timestamp outside tolerance")
	ErrSignatureMismatch = errors.New("signature: mismatch")
)

// Verify checks sig against the expected signature for payload, secret and
// timestamp in constant time.
func (s *Signer) Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	return Verify(payload, secret, timestamp, sig)
}

// Verify checks sig against the expected signature for payload, secret and
// timestamp in constant time.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// ParseTimestamp parses the X-Webhook-Timestamp header value.
func ParseTimestamp(v string) (int64, error) {
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ts <= 0 {
		return 0, ErrInvalidTimestamp
	}
	return ts, nil
}

// VerifyRequest validates the raw header values a receiver got alongside body.
// A tolerance of zero disables the freshness check.
func VerifyRequest(body []byte, secret, tsHeader, sigHeader string, tolerance time.Duration, now time.Time) error {
	if tsHeader == "" || sigHeader == "" {
		return ErrMissingHeader
	}

	ts, err := ParseTimestamp(tsHeader)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > tolerance {
			return ErrTimestampExpired
		}
	}

	if !Verify(body, secret, ts, sigHeader) {
		return ErrSignatureMismatch
	}
	return nil
}

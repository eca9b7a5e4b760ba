// Package signature provides HMAC-SHA256 webhook signing and verification.
//
// A signature covers "{timestamp}.{payload}" and is rendered as
// "sha256=<lowercase hex>". Receivers recompute it from the raw request body,
// the X-Webhook-Timestamp header and their copy of the endpoint secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Prefix is prepended to every rendered signature.
const Prefix = "sha256="

// Signer computes webhook signatures. The zero value is ready to use.
type Signer struct{}

// NewSigner returns a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign returns the signature for payload under secret at timestamp.
func (s *Signer) Sign(payload []byte, secret string, timestamp int64) string {
	return Sign(payload, secret, timestamp)
}

// Sign returns "sha256=" followed by the lowercase hex HMAC-SHA256 of
// "{timestamp}.{payload}" keyed by secret.
func Sign(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(strconv.AppendInt(nil, timestamp, 10))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// SignString is Sign for a payload already held as a string.
func SignString(payload, secret string, timestamp int64) string {
	return Sign([]byte(payload), secret, timestamp)
}

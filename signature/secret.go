package signature

import (
	"crypto/rand"
	"encoding/hex"
	"net/textproto"
)

// GenerateSecret creates a random signing secret: "whsec_" + 64 hex chars.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("herald: failed to generate random secret: " + err.Error())
	}
	return "whsec_" + hex.EncodeToString(b)
}

func canonical(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

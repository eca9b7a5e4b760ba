package signature_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/xraph/herald/signature"
)

func TestGenerateSecret(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		secret := signature.GenerateSecret()

		raw, ok := strings.CutPrefix(secret, "whsec_")
		if !ok {
			t.Fatalf("secret %q lacks the whsec_ prefix", secret)
		}
		key, err := hex.DecodeString(raw)
		if err != nil {
			t.Fatalf("secret body is not lowercase hex: %v", err)
		}
		if len(key) != 32 || raw != strings.ToLower(raw) {
			t.Fatalf("secret %q: want 32 random bytes in lowercase hex", secret)
		}
		if seen[secret] {
			t.Fatalf("duplicate secret %q", secret)
		}
		seen[secret] = true
	}
}

// The full secret string, prefix included, is the HMAC key receivers use.
func TestGeneratedSecretsKeySignatures(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"alarm.triggered","data":{"alarm_id":"alm_1"}}`)
	const ts = int64(1700000000)

	mine, theirs := signature.GenerateSecret(), signature.GenerateSecret()
	sig := signature.Sign(body, mine, ts)

	if !signature.Verify(body, mine, ts, sig) {
		t.Fatal("signature made with a generated secret did not verify")
	}
	if signature.Verify(body, theirs, ts, sig) {
		t.Fatal("another endpoint's secret verified the signature")
	}
	if signature.Verify(body, strings.TrimPrefix(mine, "whsec_"), ts, sig) {
		t.Fatal("the whsec_ prefix must be part of the key")
	}
}

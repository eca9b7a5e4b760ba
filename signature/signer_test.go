package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/xraph/herald/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"alarm.created"}`)
	secret := "whsec_testsecret123"
	timestamp := int64(1700000000)

	got := signature.Sign(payload, secret, timestamp)

	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignDeterministic(t *testing.T) {
	signer := signature.NewSigner()
	payload := []byte(`{"device_id":"dev_42"}`)

	a := signer.Sign(payload, "whsec_a", 1700000001)
	b := signer.Sign(payload, "whsec_a", 1700000001)
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}
	if s := signature.SignString(string(payload), "whsec_a", 1700000001); s != a {
		t.Fatalf("SignString = %q, want %q", s, a)
	}
}

func TestSignSensitiveToEachInput(t *testing.T) {
	base := signature.Sign([]byte(`{"a":1}`), "whsec_s", 1700000002)

	cases := map[string]string{
		"payload":   signature.Sign([]byte(`{"a":2}`), "whsec_s", 1700000002),
		"secret":    signature.Sign([]byte(`{"a":1}`), "whsec_t", 1700000002),
		"timestamp": signature.Sign([]byte(`{"a":1}`), "whsec_s", 1700000003),
	}
	for name, sig := range cases {
		if sig == base {
			t.Errorf("changing %s did not change the signature", name)
		}
	}
}

func TestSignatureFormat(t *testing.T) {
	sig := signature.Sign([]byte("test"), "secret", 123)

	if len(sig) < 7 || sig[:7] != "sha256=" {
		t.Errorf("signature should start with 'sha256=', got %q", sig)
	}

	// sha256= (7) + 64 lowercase hex chars
	if len(sig) != 71 {
		t.Errorf("expected signature length 71, got %d", len(sig))
	}
	for _, c := range sig[7:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("non lowercase-hex character %q in %q", c, sig)
		}
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	signer := signature.NewSigner()
	payload := []byte(`{"alarm_id":"al_01","severity":"critical"}`)
	secret := "whsec_roundtripsecret"
	timestamp := int64(1700000004)

	sig := signer.Sign(payload, secret, timestamp)
	if !signer.Verify(payload, secret, timestamp, sig) {
		t.Error("Verify() returned false for valid signature")
	}
	if signer.Verify([]byte(`{"alarm_id":"al_02"}`), secret, timestamp, sig) {
		t.Error("Verify() returned true for tampered payload")
	}
	if signer.Verify(payload, "whsec_wrong", timestamp, sig) {
		t.Error("Verify() returned true for wrong secret")
	}
	if signer.Verify(payload, secret, timestamp+1, sig) {
		t.Error("Verify() returned true for wrong timestamp")
	}
}

func TestVerifyRequest(t *testing.T) {
	body := []byte(`{"id":"evt_9"}`)
	secret := "whsec_req"
	now := time.Unix(1700000100, 0)
	ts := now.Add(-30 * time.Second).Unix()
	sig := signature.Sign(body, secret, ts)
	tsHeader := strconv.FormatInt(ts, 10)

	tests := []struct {
		name      string
		ts, sig   string
		tolerance time.Duration
		want      error
	}{
		{"valid", tsHeader, sig, 5 * time.Minute, nil},
		{"no tolerance check", tsHeader, sig, 0, nil},
		{"missing signature", tsHeader, "", time.Minute, signature.ErrMissingHeader},
		{"missing timestamp", "", sig, time.Minute, signature.ErrMissingHeader},
		{"garbage timestamp", "abc", sig, time.Minute, signature.ErrInvalidTimestamp},
		{"stale", tsHeader, sig, 10 * time.Second, signature.ErrTimestampExpired},
		{"mismatch", tsHeader, "sha256=00", time.Minute, signature.ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := signature.VerifyRequest(body, secret, tt.ts, tt.sig, tt.tolerance, now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("VerifyRequest() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReservedHeaders(t *testing.T) {
	for _, h := range []string{"x-webhook-signature", "X-Webhook-Event-Id", "content-type", "User-Agent"} {
		if !signature.Reserved(h) {
			t.Errorf("%q should be reserved", h)
		}
	}
	if signature.Reserved("X-Tenant") {
		t.Error("X-Tenant should not be reserved")
	}
}

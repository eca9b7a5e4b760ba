package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/ratelimit"
	"github.com/xraph/herald/signature"
)

const testSecret = "whsec_test_secret_1234567890abcdef1234567890abcdef"

func newTestEndpoint(url string, events ...string) *endpoint.Endpoint {
	if len(events) == 0 {
		events = []string{event.AlarmCreated}
	}
	return &endpoint.Endpoint{
		Entity:         entity.New(),
		ID:             id.NewWebhookID(),
		OrganizationID: "org-1",
		URL:            url,
		Secret:         testSecret,
		Events:         events,
		Enabled:        true,
		RetryCount:     3,
		TimeoutSeconds: 5,
	}
}

func newTestEvent(typ string) *event.Event {
	return &event.Event{
		ID:      "evt_test_1",
		Type:    typ,
		Created: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:    json.RawMessage(`{"alarm_id":"a-1"}`),
	}
}

func TestSenderHeadersAndSignature(t *testing.T) {
	var (
		got  http.Header
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	signedAt := time.Unix(1_700_000_000, 0)
	sender := delivery.NewSender(delivery.SenderConfig{Now: func() time.Time { return signedAt }})
	ep := newTestEndpoint(srv.URL)
	evt := newTestEvent(event.AlarmCreated)
	payload, _ := json.Marshal(evt)

	resp, err := sender.Deliver(context.Background(), ep, evt, payload, 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 || resp.Body != `{"ok":true}` {
		t.Fatalf("unexpected response %+v", resp)
	}
	if string(body) != string(payload) {
		t.Fatalf("body mismatch:\n got %s\nwant %s", body, payload)
	}

	checks := map[string]string{
		"Content-Type":            "application/json",
		"User-Agent":              delivery.DefaultUserAgent,
		signature.HeaderTimestamp: "1700000000",
		signature.HeaderEventType: event.AlarmCreated,
		signature.HeaderEventID:   "evt_test_1",
		signature.HeaderAttempt:   "2",
	}
	for k, want := range checks {
		if v := got.Get(k); v != want {
			t.Errorf("%s = %q, want %q", k, v, want)
		}
	}

	ts, _ := strconv.ParseInt(got.Get(signature.HeaderTimestamp), 10, 64)
	if !signature.Verify(body, testSecret, ts, got.Get(signature.HeaderSignature)) {
		t.Fatal("signature does not verify against the received body")
	}
}

func TestSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	sender := delivery.NewSender(delivery.SenderConfig{})
	evt := newTestEvent(event.AlarmCreated)
	resp, err := sender.Deliver(context.Background(), newTestEndpoint(srv.URL), evt, []byte(`{}`), 1)

	if !errors.Is(err, delivery.ErrNon2xx) {
		t.Fatalf("expected ErrNon2xx, got %v", err)
	}
	var se *delivery.StatusError
	if !errors.As(err, &se) || se.StatusCode != 503 {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
	if resp.StatusCode != 503 {
		t.Fatalf("expected status 503, got %d", resp.StatusCode)
	}
	if len(resp.Body) != 1024 {
		t.Fatalf("expected body capped at 1024, got %d", len(resp.Body))
	}
}

func TestSenderRedirectIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	sender := delivery.NewSender(delivery.SenderConfig{})
	_, err := sender.Deliver(context.Background(), newTestEndpoint(srv.URL), newTestEvent(event.AlarmCreated), []byte(`{}`), 1)
	if !errors.Is(err, delivery.ErrNon2xx) {
		t.Fatalf("expected ErrNon2xx for 304, got %v", err)
	}
}

func TestSenderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ep := newTestEndpoint(srv.URL)
	ep.TimeoutSeconds = 1

	sender := delivery.NewSender(delivery.SenderConfig{})
	start := time.Now()
	resp, err := sender.Deliver(context.Background(), ep, newTestEvent(event.AlarmCreated), []byte(`{}`), 1)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if resp.StatusCode != 0 {
		t.Fatalf("expected no status code, got %d", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
}

func TestSenderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	sender := delivery.NewSender(delivery.SenderConfig{})
	resp, err := sender.Deliver(context.Background(), newTestEndpoint(url), newTestEvent(event.AlarmCreated), []byte(`{}`), 1)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if errors.Is(err, delivery.ErrNon2xx) {
		t.Fatal("transport error must not look like a status error")
	}
	if resp.StatusCode != 0 {
		t.Fatalf("expected no status code, got %d", resp.StatusCode)
	}
}

func TestSenderCustomHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ep := newTestEndpoint(srv.URL)
	ep.Headers = map[string]string{
		"X-Tenant":           "acme",
		"X-Webhook-Event-Id": "spoofed",
	}

	sender := delivery.NewSender(delivery.SenderConfig{UserAgent: "custom-agent/2"})
	if _, err := sender.Deliver(context.Background(), ep, newTestEvent(event.AlarmCreated), []byte(`{}`), 1); err != nil {
		t.Fatal(err)
	}

	if got.Get("X-Tenant") != "acme" {
		t.Fatalf("custom header missing: %v", got)
	}
	if got.Get(signature.HeaderEventID) != "evt_test_1" {
		t.Fatalf("signed header overridden: %q", got.Get(signature.HeaderEventID))
	}
	if got.Get("User-Agent") != "custom-agent/2" {
		t.Fatalf("user agent = %q", got.Get("User-Agent"))
	}
}

func TestSenderRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := newTestEndpoint(srv.URL)
	ep.RateLimit = 1
	ep.TimeoutSeconds = 1

	sender := delivery.NewSender(delivery.SenderConfig{Limiter: ratelimit.New()})
	evt := newTestEvent(event.AlarmCreated)

	if _, err := sender.Deliver(context.Background(), ep, evt, []byte(`{}`), 1); err != nil {
		t.Fatal(err)
	}

	// The bucket is empty; a caller deadline shorter than the refill fails
	// the attempt before it is sent.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := sender.Deliver(ctx, ep, evt, []byte(`{}`), 1); err == nil {
		t.Fatal("expected rate limit error")
	}
}

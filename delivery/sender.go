package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/ratelimit"
	"github.com/xraph/herald/signature"
)

// DefaultUserAgent is sent with every delivery unless overridden.
const DefaultUserAgent = "Herald-Webhooks/1.0"

const maxResponseBody = 1024 // 1KB cap on captured response bodies

// ErrNon2xx is matched by errors returned for non-2xx responses.
var ErrNon2xx = errors.New("non-2xx response")

// StatusError reports the status code of a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "endpoint responded " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
}

// Is makes StatusError match ErrNon2xx.
func (e *StatusError) Is(target error) bool { return target == ErrNon2xx }

// Response describes the outcome of one HTTP attempt.
type Response struct {
	StatusCode int
	LatencyMs  int64
	Body       string
}

// Executor performs a single delivery attempt. A nil error means the
// endpoint answered 2xx.
type Executor interface {
	Deliver(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, payload []byte, attempt int) (Response, error)
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	// UserAgent defaults to DefaultUserAgent.
	UserAgent string

	// Client defaults to a client without a global timeout; each attempt
	// is bounded by the endpoint's timeout instead.
	Client *http.Client

	// Limiter throttles endpoints with a RateLimit. Nil disables it.
	Limiter *ratelimit.Limiter

	// Now returns the signing time. Defaults to time.Now.
	Now func() time.Time
}

// Sender is the HTTP Executor.
type Sender struct {
	client    *http.Client
	userAgent string
	limiter   *ratelimit.Limiter
	signer    *signature.Signer
	now       func() time.Time
}

// NewSender creates a sender.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sender{
		client:    cfg.Client,
		userAgent: cfg.UserAgent,
		limiter:   cfg.Limiter,
		signer:    signature.NewSigner(),
		now:       cfg.Now,
	}
}

// Deliver POSTs payload to the endpoint with signed headers. The attempt
// is bounded by ep.Timeout(); waiting on the endpoint's rate limit counts
// against that budget.
func (s *Sender) Deliver(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, payload []byte, attempt int) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, ep.Timeout())
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, ep.ID.String(), ep.RateLimit); err != nil {
			return Response{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}

	// Custom endpoint headers first so the signed set always wins.
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	ts := s.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(signature.HeaderSignature, s.signer.Sign(payload, ep.Secret, ts))
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signature.HeaderEventType, evt.Type)
	req.Header.Set(signature.HeaderEventID, evt.ID)
	req.Header.Set(signature.HeaderAttempt, strconv.Itoa(attempt))

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G107: the URL is the endpoint the organization registered.
	if err != nil {
		return Response{LatencyMs: time.Since(start).Milliseconds()}, fmt.Errorf("post %s: %w", ep.URL, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	out := Response{
		StatusCode: resp.StatusCode,
		LatencyMs:  time.Since(start).Milliseconds(),
		Body:       string(body),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{StatusCode: resp.StatusCode}
	}
	if readErr != nil {
		// The endpoint already accepted the delivery.
		out.Body = ""
	}
	return out, nil
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, payload []byte, attempt int) (Response, error)

// Deliver calls f.
func (f ExecutorFunc) Deliver(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, payload []byte, attempt int) (Response, error) {
	return f(ctx, ep, evt, payload, attempt)
}

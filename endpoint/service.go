package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/signature"
)

// ErrNotFound is returned for unknown endpoints and for endpoints owned by
// another organization.
var ErrNotFound = errors.New("herald: webhook not found")

// Config holds the defaults applied at creation time.
type Config struct {
	DefaultRetryCount     int
	DefaultTimeoutSeconds int
}

// Service provides endpoint management operations scoped by organization.
type Service struct {
	store  Store
	config Config
	logger *slog.Logger
}

// NewService creates a new endpoint service.
func NewService(store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultRetryCount <= 0 {
		cfg.DefaultRetryCount = DefaultRetryCount
	}
	if cfg.DefaultTimeoutSeconds <= 0 {
		cfg.DefaultTimeoutSeconds = DefaultTimeoutSeconds
	}
	return &Service{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Create registers a new webhook endpoint for orgID.
func (svc *Service) Create(ctx context.Context, orgID string, in CreateInput) (*Endpoint, error) {
	if orgID == "" {
		return nil, &ValidationError{Field: "organization_id", Message: "required"}
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	events, err := validateEvents(in.Events)
	if err != nil {
		return nil, err
	}
	if err := validateHeaders(in.Headers); err != nil {
		return nil, err
	}
	if in.RateLimit < 0 {
		return nil, &ValidationError{Field: "rate_limit", Message: "must not be negative"}
	}

	ep := &Endpoint{
		Entity:         entity.New(),
		ID:             id.NewWebhookID(),
		OrganizationID: orgID,
		URL:            in.URL,
		Description:    in.Description,
		Secret:         in.Secret,
		Events:         events,
		Enabled:        true,
		RetryCount:     svc.config.DefaultRetryCount,
		TimeoutSeconds: svc.config.DefaultTimeoutSeconds,
		RateLimit:      in.RateLimit,
		Headers:        in.Headers,
	}
	if ep.Secret == "" {
		ep.Secret = signature.GenerateSecret()
	}
	if in.Enabled != nil {
		ep.Enabled = *in.Enabled
	}
	if in.RetryCount != nil {
		if *in.RetryCount < 1 {
			return nil, &ValidationError{Field: "retry_count", Message: "must be at least 1"}
		}
		ep.RetryCount = *in.RetryCount
	}
	if in.TimeoutSeconds != nil {
		if *in.TimeoutSeconds < 1 {
			return nil, &ValidationError{Field: "timeout_seconds", Message: "must be at least 1"}
		}
		ep.TimeoutSeconds = *in.TimeoutSeconds
	}

	if err := svc.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "webhook registered",
		"webhook_id", ep.ID, "organization_id", orgID, "events", ep.Events)
	return ep, nil
}

// Get returns an endpoint owned by orgID.
func (svc *Service) Get(ctx context.Context, orgID string, epID id.ID) (*Endpoint, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}
	if ep.OrganizationID != orgID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, epID)
	}
	return ep, nil
}

// Update applies a partial update. The URL and events are re-validated
// when supplied.
func (svc *Service) Update(ctx context.Context, orgID string, epID id.ID, in UpdateInput) (*Endpoint, error) {
	ep, err := svc.Get(ctx, orgID, epID)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := validateURL(*in.URL); err != nil {
			return nil, err
		}
		ep.URL = *in.URL
	}
	if in.Events != nil {
		events, err := validateEvents(in.Events)
		if err != nil {
			return nil, err
		}
		ep.Events = events
	}
	if in.Description != nil {
		ep.Description = *in.Description
	}
	if in.Enabled != nil {
		ep.Enabled = *in.Enabled
	}
	if in.RetryCount != nil {
		if *in.RetryCount < 1 {
			return nil, &ValidationError{Field: "retry_count", Message: "must be at least 1"}
		}
		ep.RetryCount = *in.RetryCount
	}
	if in.TimeoutSeconds != nil {
		if *in.TimeoutSeconds < 1 {
			return nil, &ValidationError{Field: "timeout_seconds", Message: "must be at least 1"}
		}
		ep.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.RateLimit != nil {
		if *in.RateLimit < 0 {
			return nil, &ValidationError{Field: "rate_limit", Message: "must not be negative"}
		}
		ep.RateLimit = *in.RateLimit
	}
	if in.Headers != nil {
		if err := validateHeaders(in.Headers); err != nil {
			return nil, err
		}
		ep.Headers = in.Headers
		if len(in.Headers) == 0 {
			ep.Headers = nil
		}
	}

	ep.Touch()
	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// Delete removes an endpoint. Its deliveries stay in the ledger.
func (svc *Service) Delete(ctx context.Context, orgID string, epID id.ID) error {
	if _, err := svc.Get(ctx, orgID, epID); err != nil {
		return err
	}
	if err := svc.store.DeleteEndpoint(ctx, epID); err != nil {
		return err
	}
	svc.logger.InfoContext(ctx, "webhook deleted", "webhook_id", epID, "organization_id", orgID)
	return nil
}

// List returns the organization's endpoints.
func (svc *Service) List(ctx context.Context, orgID string, opts ListOpts) ([]*Endpoint, error) {
	return svc.store.ListEndpoints(ctx, orgID, opts)
}

// Resolve returns the enabled endpoints of orgID subscribed to eventType.
func (svc *Service) Resolve(ctx context.Context, orgID, eventType string) ([]*Endpoint, error) {
	return svc.store.Resolve(ctx, orgID, eventType)
}

// SetEnabled enables or disables an endpoint.
func (svc *Service) SetEnabled(ctx context.Context, orgID string, epID id.ID, enabled bool) error {
	if _, err := svc.Get(ctx, orgID, epID); err != nil {
		return err
	}
	return svc.store.SetEnabled(ctx, epID, enabled)
}

// RotateSecret generates and stores a new signing secret.
func (svc *Service) RotateSecret(ctx context.Context, orgID string, epID id.ID) (string, error) {
	ep, err := svc.Get(ctx, orgID, epID)
	if err != nil {
		return "", err
	}

	ep.Secret = signature.GenerateSecret()
	ep.Touch()
	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return "", err
	}

	svc.logger.InfoContext(ctx, "webhook secret rotated", "webhook_id", epID)
	return ep.Secret, nil
}

// ──────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "endpoint validation: " + e.Field + ": " + e.Message
}

func validateURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "url", Message: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Message: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	return nil
}

func validateEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, &ValidationError{Field: "events", Message: "at least one event type required"}
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e == "" {
			return nil, &ValidationError{Field: "events", Message: "event types must not be empty"}
		}
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func validateHeaders(h map[string]string) error {
	for k := range h {
		if k == "" {
			return &ValidationError{Field: "headers", Message: "header name must not be empty"}
		}
		if signature.Reserved(k) {
			return &ValidationError{Field: "headers", Message: k + " is set by the dispatcher"}
		}
	}
	return nil
}

package api

import (
	"encoding/json"

	"github.com/xraph/herald/event"
)

// Each request carries the caller's organization header. Hosts that resolve
// the organization in middleware may instead store it with
// scope.WithOrganization.

// ---------------------------------------------------------------------------
// Webhook requests
// ---------------------------------------------------------------------------

// CreateWebhookForgeRequest binds the body for POST /webhooks.
type CreateWebhookForgeRequest struct {
	OrganizationID string            `description:"Caller organization"            header:"X-Organization-ID"`
	URL            string            `description:"Webhook delivery URL"           json:"url"`
	Events         []string          `description:"Subscribed event types or *"    json:"events"`
	Description    string            `description:"Endpoint description"           json:"description,omitempty"`
	Secret         string            `description:"Signing secret (generated)"     json:"secret,omitempty"`
	Enabled        *bool             `description:"Initial enabled state"          json:"enabled,omitempty"`
	RetryCount     *int              `description:"Maximum attempts per event"     json:"retry_count,omitempty"`
	TimeoutSeconds *int              `description:"Per-attempt timeout in seconds" json:"timeout_seconds,omitempty"`
	RateLimit      int               `description:"Deliveries per second limit"    json:"rate_limit,omitempty"`
	Headers        map[string]string `description:"Custom HTTP headers"            json:"headers,omitempty"`
}

// ListWebhooksForgeRequest binds query parameters for GET /webhooks.
type ListWebhooksForgeRequest struct {
	OrganizationID string `description:"Caller organization"    header:"X-Organization-ID"`
	Enabled        string `description:"Filter by enabled"      query:"enabled"`
	Offset         int    `description:"Pagination offset"      query:"offset"`
	Limit          int    `description:"Page size (default 50)" query:"limit"`
}

// WebhookForgeRequest binds the path for single-webhook routes.
type WebhookForgeRequest struct {
	OrganizationID string `description:"Caller organization" header:"X-Organization-ID"`
	WebhookID      string `description:"Webhook identifier"  path:"webhookId"`
}

// UpdateWebhookForgeRequest binds path + body for PUT /webhooks/:webhookId.
type UpdateWebhookForgeRequest struct {
	OrganizationID string            `description:"Caller organization"            header:"X-Organization-ID"`
	WebhookID      string            `description:"Webhook identifier"             path:"webhookId"`
	URL            *string           `description:"Webhook delivery URL"           json:"url,omitempty"`
	Events         []string          `description:"Subscribed event types or *"    json:"events,omitempty"`
	Description    *string           `description:"Endpoint description"           json:"description,omitempty"`
	Enabled        *bool             `description:"Enabled state"                  json:"enabled,omitempty"`
	RetryCount     *int              `description:"Maximum attempts per event"     json:"retry_count,omitempty"`
	TimeoutSeconds *int              `description:"Per-attempt timeout in seconds" json:"timeout_seconds,omitempty"`
	RateLimit      *int              `description:"Deliveries per second limit"    json:"rate_limit,omitempty"`
	Headers        map[string]string `description:"Custom HTTP headers"            json:"headers,omitempty"`
}

// ---------------------------------------------------------------------------
// Dispatch requests
// ---------------------------------------------------------------------------

// DispatchForgeRequest binds the body for POST /dispatch.
type DispatchForgeRequest struct {
	OrganizationID string       `description:"Caller organization"             header:"X-Organization-ID"`
	WebhookID      string       `description:"Target webhook"                  json:"webhook_id"`
	Event          *event.Event `description:"Event to deliver"                json:"event"`
	Attempt        int          `description:"1-based attempt number"          json:"attempt,omitempty"`
	MaxRetries     *int         `description:"Override of the retry budget"    json:"max_retries,omitempty"`
}

// BroadcastForgeRequest binds the body for POST /broadcast.
type BroadcastForgeRequest struct {
	OrganizationID string       `description:"Caller organization" header:"X-Organization-ID" json:"organization_id,omitempty"`
	Event          *event.Event `description:"Event to fan out"    json:"event"`
}

// ---------------------------------------------------------------------------
// Delivery requests
// ---------------------------------------------------------------------------

// ListDeliveriesForgeRequest binds query parameters for GET /deliveries.
type ListDeliveriesForgeRequest struct {
	OrganizationID string `description:"Caller organization"    header:"X-Organization-ID"`
	WebhookID      string `description:"Filter by webhook"      query:"webhook_id"`
	Status         string `description:"Filter by status"       query:"status"`
	Offset         int    `description:"Pagination offset"      query:"offset"`
	Limit          int    `description:"Page size (default 50)" query:"limit"`
}

// DeliveryForgeRequest binds the path for single-delivery routes.
type DeliveryForgeRequest struct {
	OrganizationID string `description:"Caller organization" header:"X-Organization-ID"`
	DeliveryID     string `description:"Delivery identifier" path:"deliveryId"`
}

// ---------------------------------------------------------------------------
// Catalog requests
// ---------------------------------------------------------------------------

// ListEventTypesForgeRequest is empty; GET /event-types has no parameters.
type ListEventTypesForgeRequest struct{}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SecretForgeResponse is the response for POST /webhooks/:webhookId/rotate-secret.
type SecretForgeResponse struct {
	Secret string `json:"secret"`
}

// EventTypeForgeResponse documents one catalog entry.
type EventTypeForgeResponse struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Group       string          `json:"group,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Example     json.RawMessage `json:"example,omitempty"`
}

package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:herald_webhooks"`

	ID             string            `grove:"id,pk"           bson:"_id"`
	OrganizationID string            `grove:"organization_id" bson:"organization_id"`
	URL            string            `grove:"url"             bson:"url"`
	Description    string            `grove:"description"     bson:"description"`
	Secret         string            `grove:"secret"          bson:"secret"`
	Events         []string          `grove:"events"          bson:"events"`
	Enabled        bool              `grove:"enabled"         bson:"enabled"`
	RetryCount     int               `grove:"retry_count"     bson:"retry_count"`
	TimeoutSeconds int               `grove:"timeout_seconds" bson:"timeout_seconds"`
	RateLimit      int               `grove:"rate_limit"      bson:"rate_limit"`
	Headers        map[string]string `grove:"headers"         bson:"headers,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

func toWebhookModel(ep *endpoint.Endpoint) *webhookModel {
	return &webhookModel{
		ID:             ep.ID.String(),
		OrganizationID: ep.OrganizationID,
		URL:            ep.URL,
		Description:    ep.Description,
		Secret:         ep.Secret,
		Events:         ep.Events,
		Enabled:        ep.Enabled,
		RetryCount:     ep.RetryCount,
		TimeoutSeconds: ep.TimeoutSeconds,
		RateLimit:      ep.RateLimit,
		Headers:        ep.Headers,
		CreatedAt:      ep.CreatedAt,
		UpdatedAt:      ep.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             epID,
		OrganizationID: m.OrganizationID,
		URL:            m.URL,
		Description:    m.Description,
		Secret:         m.Secret,
		Events:         m.Events,
		Enabled:        m.Enabled,
		RetryCount:     m.RetryCount,
		TimeoutSeconds: m.TimeoutSeconds,
		RateLimit:      m.RateLimit,
		Headers:        m.Headers,
	}, nil
}

// --- Delivery models ---

// deliveryModel stores the payload as a string so the bytes read back are
// the bytes that were sent. next_attempt_at is written as null when unset,
// which never matches a $lte date filter.
type deliveryModel struct {
	grove.BaseModel `grove:"table:herald_deliveries"`

	ID             string     `grove:"id,pk"            bson:"_id"`
	WebhookID      string     `grove:"webhook_id"       bson:"webhook_id"`
	OrganizationID string     `grove:"organization_id"  bson:"organization_id"`
	EventID        string     `grove:"event_id"         bson:"event_id"`
	EventType      string     `grove:"event_type"       bson:"event_type"`
	Payload        string     `grove:"payload"          bson:"payload"`
	Attempt        int        `grove:"attempt"          bson:"attempt"`
	MaxAttempts    int        `grove:"max_attempts"     bson:"max_attempts"`
	Status         string     `grove:"status"           bson:"status"`
	StatusCode     int        `grove:"status_code"      bson:"status_code"`
	ResponseTimeMs int64      `grove:"response_time_ms" bson:"response_time_ms"`
	ErrorMessage   string     `grove:"error_message"    bson:"error_message"`
	DeliveredAt    *time.Time `grove:"delivered_at"     bson:"delivered_at,omitempty"`
	FailedAt       *time.Time `grove:"failed_at"        bson:"failed_at,omitempty"`
	NextAttemptAt  *time.Time `grove:"next_attempt_at"  bson:"next_attempt_at"`
	CreatedAt      time.Time  `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"       bson:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		WebhookID:      d.WebhookID.String(),
		OrganizationID: d.OrganizationID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Payload:        string(d.Payload),
		Attempt:        d.Attempt,
		MaxAttempts:    d.MaxAttempts,
		Status:         string(d.Status),
		StatusCode:     d.StatusCode,
		ResponseTimeMs: d.ResponseTimeMs,
		ErrorMessage:   d.ErrorMessage,
		DeliveredAt:    d.DeliveredAt,
		FailedAt:       d.FailedAt,
		NextAttemptAt:  d.NextAttemptAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	epID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		WebhookID:      epID,
		OrganizationID: m.OrganizationID,
		EventID:        m.EventID,
		EventType:      m.EventType,
		Payload:        json.RawMessage(m.Payload),
		Attempt:        m.Attempt,
		MaxAttempts:    m.MaxAttempts,
		Status:         delivery.Status(m.Status),
		StatusCode:     m.StatusCode,
		ResponseTimeMs: m.ResponseTimeMs,
		ErrorMessage:   m.ErrorMessage,
		DeliveredAt:    m.DeliveredAt,
		FailedAt:       m.FailedAt,
		NextAttemptAt:  m.NextAttemptAt,
	}, nil
}

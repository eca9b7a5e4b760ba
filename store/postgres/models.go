package postgres

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

	ID             string            `grove:"id,pk"`
	OrganizationID string            `grove:"organization_id"`
	URL            string            `grove:"url"`
	Description    string            `grove:"description"`
	Secret         string            `grove:"secret"`
	Events         []string          `grove:"events,array"`
	Enabled        bool              `grove:"enabled"`
	RetryCount     int               `grove:"retry_count"`
	TimeoutSeconds int               `grove:"timeout_seconds"`
	RateLimit      int               `grove:"rate_limit"`
	Headers        map[string]string `grove:"headers,type:jsonb"`
	CreatedAt      time.Time         `grove:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"`
}

func toWebhookModel(ep *endpoint.Endpoint) *webhookModel {
	headers := ep.Headers
	if headers == nil {
		headers = map[string]string{}
	}
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
		Headers:        headers,
		CreatedAt:      ep.CreatedAt,
		UpdatedAt:      ep.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	var headers map[string]string
	if len(m.Headers) > 0 {
		headers = m.Headers
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
		Headers:        headers,
	}, nil
}

// --- Delivery models ---

type deliveryModel struct {
	grove.BaseModel `grove:"table:herald_deliveries"`

	ID             string          `grove:"id,pk"`
	WebhookID      string          `grove:"webhook_id"`
	OrganizationID string          `grove:"organization_id"`
	EventID        string          `grove:"event_id"`
	EventType      string          `grove:"event_type"`
	Payload        json.RawMessage `grove:"payload,type:json"`
	Attempt        int             `grove:"attempt"`
	MaxAttempts    int             `grove:"max_attempts"`
	Status         string          `grove:"status"`
	StatusCode     int             `grove:"status_code"`
	ResponseTimeMs int64           `grove:"response_time_ms"`
	ErrorMessage   string          `grove:"error_message"`
	DeliveredAt    *time.Time      `grove:"delivered_at"`
	FailedAt       *time.Time      `grove:"failed_at"`
	NextAttemptAt  *time.Time      `grove:"next_attempt_at"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		WebhookID:      d.WebhookID.String(),
		OrganizationID: d.OrganizationID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Payload:        d.Payload,
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
		Payload:        m.Payload,
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

func fromDeliveryModels(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

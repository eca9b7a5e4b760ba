package sqlite

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

	ID             string    `grove:"id,pk"`
	OrganizationID string    `grove:"organization_id"`
	URL            string    `grove:"url"`
	Description    string    `grove:"description"`
	Secret         string    `grove:"secret"`
	Events         string    `grove:"events"` // JSON array
	Enabled        bool      `grove:"enabled"`
	RetryCount     int       `grove:"retry_count"`
	TimeoutSeconds int       `grove:"timeout_seconds"`
	RateLimit      int       `grove:"rate_limit"`
	Headers        string    `grove:"headers"` // JSON object
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toWebhookModel(ep *endpoint.Endpoint) *webhookModel {
	events, _ := json.Marshal(ep.Events)   //nolint:errcheck // best-effort
	headers, _ := json.Marshal(ep.Headers) //nolint:errcheck // best-effort

	return &webhookModel{
		ID:             ep.ID.String(),
		OrganizationID: ep.OrganizationID,
		URL:            ep.URL,
		Description:    ep.Description,
		Secret:         ep.Secret,
		Events:         string(events),
		Enabled:        ep.Enabled,
		RetryCount:     ep.RetryCount,
		TimeoutSeconds: ep.TimeoutSeconds,
		RateLimit:      ep.RateLimit,
		Headers:        string(headers),
		CreatedAt:      ep.CreatedAt,
		UpdatedAt:      ep.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}

	var events []string
	if m.Events != "" {
		_ = json.Unmarshal([]byte(m.Events), &events) //nolint:errcheck // best-effort
	}
	var headers map[string]string
	if m.Headers != "" && m.Headers != "null" {
		_ = json.Unmarshal([]byte(m.Headers), &headers) //nolint:errcheck // best-effort
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
		Events:         events,
		Enabled:        m.Enabled,
		RetryCount:     m.RetryCount,
		TimeoutSeconds: m.TimeoutSeconds,
		RateLimit:      m.RateLimit,
		Headers:        headers,
	}, nil
}

// --- Delivery models ---

// deliveryModel keeps next_attempt_at as unix milliseconds so the retry
// poller compares integers instead of SQLite's text timestamps.
type deliveryModel struct {
	grove.BaseModel `grove:"table:herald_deliveries"`

	ID             string     `grove:"id,pk"`
	WebhookID      string     `grove:"webhook_id"`
	OrganizationID string     `grove:"organization_id"`
	EventID        string     `grove:"event_id"`
	EventType      string     `grove:"event_type"`
	Payload        string     `grove:"payload"`
	Attempt        int        `grove:"attempt"`
	MaxAttempts    int        `grove:"max_attempts"`
	Status         string     `grove:"status"`
	StatusCode     int        `grove:"status_code"`
	ResponseTimeMs int64      `grove:"response_time_ms"`
	ErrorMessage   string     `grove:"error_message"`
	DeliveredAt    *time.Time `grove:"delivered_at"`
	FailedAt       *time.Time `grove:"failed_at"`
	NextAttemptMs  *int64     `grove:"next_attempt_ms"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	m := &deliveryModel{
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
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.NextAttemptAt != nil {
		ms := d.NextAttemptAt.UnixMilli()
		m.NextAttemptMs = &ms
	}
	return m
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
	d := &delivery.Delivery{
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
	}
	if m.NextAttemptMs != nil {
		t := time.UnixMilli(*m.NextAttemptMs).UTC()
		d.NextAttemptAt = &t
	}
	return d, nil
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

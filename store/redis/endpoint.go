package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// webhookModel is the JSON representation stored in Redis.
type webhookModel struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	URL            string            `json:"url"`
	Description    string            `json:"description"`
	Secret         string            `json:"secret"`
	Events         []string          `json:"events"`
	Enabled        bool              `json:"enabled"`
	RetryCount     int               `json:"retry_count"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	RateLimit      int               `json:"rate_limit"`
	Headers        map[string]string `json:"headers,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
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

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toWebhookModel(ep)

	if err := s.setEntity(ctx, entityKey(prefixWebhook, m.ID), m); err != nil {
		return fmt.Errorf("herald/redis: create endpoint: %w", err)
	}

	err := s.rdb.ZAdd(ctx, zWebhookOrg+m.OrganizationID, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("herald/redis: create endpoint index: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m webhookModel
	if err := s.getEntity(ctx, entityKey(prefixWebhook, epID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
		}
		return nil, fmt.Errorf("herald/redis: get endpoint: %w", err)
	}
	return fromWebhookModel(&m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	key := entityKey(prefixWebhook, ep.ID.String())

	var existing webhookModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, ep.ID)
		}
		return fmt.Errorf("herald/redis: update endpoint get: %w", err)
	}

	m := toWebhookModel(ep)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("herald/redis: update endpoint: %w", err)
	}
	return nil
}

// DeleteEndpoint drops the endpoint and its listing entry. Delivery rows
// and their indexes are left in place.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	key := entityKey(prefixWebhook, epID.String())

	var m webhookModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
		}
		return fmt.Errorf("herald/redis: delete endpoint get: %w", err)
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("herald/redis: delete endpoint: %w", err)
	}
	if err := s.rdb.ZRem(ctx, zWebhookOrg+m.OrganizationID, m.ID).Err(); err != nil {
		return fmt.Errorf("herald/redis: delete endpoint index: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	all, err := s.orgEndpoints(ctx, orgID, true)
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list endpoints: %w", err)
	}

	result := make([]*endpoint.Endpoint, 0, len(all))
	for _, ep := range all {
		if opts.Enabled != nil && ep.Enabled != *opts.Enabled {
			continue
		}
		result = append(result, ep)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// Resolve walks the organization's index in registration order.
func (s *Store) Resolve(ctx context.Context, orgID, eventType string) ([]*endpoint.Endpoint, error) {
	all, err := s.orgEndpoints(ctx, orgID, false)
	if err != nil {
		return nil, fmt.Errorf("herald/redis: resolve: %w", err)
	}

	var result []*endpoint.Endpoint
	for _, ep := range all {
		if ep.Enabled && ep.Subscribes(eventType) {
			result = append(result, ep)
		}
	}
	return result, nil
}

func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	key := entityKey(prefixWebhook, epID.String())

	var m webhookModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
		}
		return fmt.Errorf("herald/redis: set enabled get: %w", err)
	}

	m.Enabled = enabled
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("herald/redis: set enabled: %w", err)
	}
	return nil
}

// orgEndpoints loads every endpoint indexed under orgID. Index entries
// whose value has gone missing are skipped.
func (s *Store) orgEndpoints(ctx context.Context, orgID string, desc bool) ([]*endpoint.Endpoint, error) {
	ids, err := s.members(ctx, zWebhookOrg+orgID, desc)
	if err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, 0, len(ids))
	for _, entryID := range ids {
		var m webhookModel
		if err := s.getEntity(ctx, entityKey(prefixWebhook, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		ep, err := fromWebhookModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, nil
}

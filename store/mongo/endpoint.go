package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/herald"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
)

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	if _, err := s.mdb.NewInsert(toWebhookModel(ep)).Exec(ctx); err != nil {
		return fmt.Errorf("herald/mongo: create endpoint: %w", err)
	}
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m webhookModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": epID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
		}
		return nil, fmt.Errorf("herald/mongo: get endpoint: %w", err)
	}

	return fromWebhookModel(&m)
}

// UpdateEndpoint replaces an existing endpoint.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toWebhookModel(ep)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: update endpoint: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, ep.ID)
	}
	return nil
}

// DeleteEndpoint removes the endpoint document. Its deliveries stay.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.mdb.NewDelete((*webhookModel)(nil)).
		Filter(bson.M{"_id": epID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: delete endpoint: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
	}
	return nil
}

// ListEndpoints returns an organization's endpoints, newest first.
func (s *Store) ListEndpoints(ctx context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []webhookModel

	filter := bson.M{"organization_id": orgID}
	if opts.Enabled != nil {
		filter["enabled"] = *opts.Enabled
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: list endpoints: %w", err)
	}

	result := make([]*endpoint.Endpoint, 0, len(models))
	for i := range models {
		ep, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, nil
}

// Resolve loads the organization's enabled endpoints in registration order
// and keeps the ones subscribed to eventType.
func (s *Store) Resolve(ctx context.Context, orgID, eventType string) ([]*endpoint.Endpoint, error) {
	var models []webhookModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"organization_id": orgID,
			"enabled":         true,
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: resolve: %w", err)
	}

	var result []*endpoint.Endpoint
	for i := range models {
		ep, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		if ep.Subscribes(eventType) {
			result = append(result, ep)
		}
	}
	return result, nil
}

// SetEnabled enables or disables an endpoint.
func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	res, err := s.mdb.NewUpdate((*webhookModel)(nil)).
		Filter(bson.M{"_id": epID.String()}).
		Set("enabled", enabled).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: set enabled: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
	}
	return nil
}

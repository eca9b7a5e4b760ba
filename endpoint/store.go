package endpoint

import (
	"context"

	"github.com/xraph/herald/id"
)

// Store defines the persistence contract for webhook endpoints.
//
// GetEndpoint, UpdateEndpoint, DeleteEndpoint and SetEnabled return an
// error wrapping ErrNotFound for unknown ids. Organization checks happen in
// Service; the dispatcher looks endpoints up by id alone.
type Store interface {
	// CreateEndpoint persists a new endpoint.
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	// GetEndpoint returns an endpoint by ID.
	GetEndpoint(ctx context.Context, epID id.ID) (*Endpoint, error)

	// UpdateEndpoint replaces an existing endpoint.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	// DeleteEndpoint removes an endpoint. Delivery history is kept.
	DeleteEndpoint(ctx context.Context, epID id.ID) error

	// ListEndpoints returns an organization's endpoints, newest first.
	ListEndpoints(ctx context.Context, orgID string, opts ListOpts) ([]*Endpoint, error)

	// Resolve returns the organization's enabled endpoints subscribed to
	// eventType, either directly or through "*".
	Resolve(ctx context.Context, orgID, eventType string) ([]*Endpoint, error)

	// SetEnabled enables or disables an endpoint without deleting it.
	SetEnabled(ctx context.Context, epID id.ID, enabled bool) error
}

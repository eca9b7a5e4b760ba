// Package memory provides an in-memory Store implementation for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
)

// compile-time interface check.
var _ heraldstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Records are copied
// on the way in and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	endpoints  map[string]*endpointRow       // keyed by ID string
	deliveries map[string]*delivery.Delivery // keyed by ID string
	ledger     []string                      // delivery IDs in insertion order
	seq        int64

	closed bool
}

type endpointRow struct {
	ep  *endpoint.Endpoint
	seq int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		endpoints:  make(map[string]*endpointRow),
		deliveries: make(map[string]*delivery.Delivery),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return herald.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[ep.ID.String()]; ok {
		return fmt.Errorf("memory: endpoint %s already exists", ep.ID)
	}
	s.seq++
	s.endpoints[ep.ID.String()] = &endpointRow{ep: copyEndpoint(ep), seq: s.seq}
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
	}
	return copyEndpoint(row.ep), nil
}

// UpdateEndpoint replaces an existing endpoint.
func (s *Store) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.endpoints[ep.ID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, ep.ID)
	}
	row.ep = copyEndpoint(ep)
	return nil
}

// DeleteEndpoint removes an endpoint. Its deliveries are kept.
func (s *Store) DeleteEndpoint(_ context.Context, epID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[epID.String()]; !ok {
		return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
	}
	delete(s.endpoints, epID.String())
	return nil
}

// ListEndpoints returns an organization's endpoints, newest first.
func (s *Store) ListEndpoints(_ context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*endpointRow, 0, len(s.endpoints))
	for _, row := range s.endpoints {
		if row.ep.OrganizationID != orgID {
			continue
		}
		if opts.Enabled != nil && row.ep.Enabled != *opts.Enabled {
			continue
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	rows = applyPagination(rows, opts.Offset, opts.Limit)
	result := make([]*endpoint.Endpoint, 0, len(rows))
	for _, row := range rows {
		result = append(result, copyEndpoint(row.ep))
	}
	return result, nil
}

// Resolve returns the organization's enabled endpoints subscribed to
// eventType.
func (s *Store) Resolve(_ context.Context, orgID, eventType string) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*endpointRow
	for _, row := range s.endpoints {
		if row.ep.OrganizationID != orgID || !row.ep.Enabled {
			continue
		}
		if row.ep.Subscribes(eventType) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	result := make([]*endpoint.Endpoint, 0, len(rows))
	for _, row := range rows {
		result = append(result, copyEndpoint(row.ep))
	}
	return result, nil
}

// SetEnabled enables or disables an endpoint.
func (s *Store) SetEnabled(_ context.Context, epID id.ID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.endpoints[epID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
	}
	row.ep.Enabled = enabled
	row.ep.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// CreateDelivery appends a ledger row.
func (s *Store) CreateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.ID.String()
	if _, ok := s.deliveries[key]; ok {
		return fmt.Errorf("memory: delivery %s already exists", d.ID)
	}
	s.deliveries[key] = copyDelivery(d)
	s.ledger = append(s.ledger, key)
	return nil
}

// UpdateDelivery replaces a ledger row.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID.String()]; !ok {
		return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, d.ID)
	}
	s.deliveries[d.ID.String()] = copyDelivery(d)
	return nil
}

// GetDelivery returns a copy of the row by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
	}
	return copyDelivery(d), nil
}

// ListDeliveries returns rows matching opts, newest first.
func (s *Store) ListDeliveries(_ context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0)
	for i := len(s.ledger) - 1; i >= 0; i-- {
		d := s.deliveries[s.ledger[i]]
		if opts.OrganizationID != "" && d.OrganizationID != opts.OrganizationID {
			continue
		}
		if !opts.WebhookID.IsNil() && d.WebhookID.String() != opts.WebhookID.String() {
			continue
		}
		if opts.Status != "" && d.Status != opts.Status {
			continue
		}
		result = append(result, d)
	}

	result = applyPagination(result, opts.Offset, opts.Limit)
	for i, d := range result {
		result[i] = copyDelivery(d)
	}
	return result, nil
}

// DequeueRetries claims due failed rows by pushing their next_attempt_at
// past the lease.
func (s *Store) DequeueRetries(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*delivery.Delivery, 0)
	for _, d := range s.deliveries {
		if d.Status != delivery.StatusFailed || d.NextAttemptAt == nil {
			continue
		}
		if d.NextAttemptAt.After(now) {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(*candidates[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	leased := now.Add(lease)
	result := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		d.NextAttemptAt = &leased
		result = append(result, copyDelivery(d))
	}
	return result, nil
}

// RenewRetry moves a queued row's lease to until.
func (s *Store) RenewRetry(_ context.Context, delID id.ID, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
	}
	if d.Status == delivery.StatusFailed && d.NextAttemptAt != nil {
		t := until
		d.NextAttemptAt = &t
	}
	return nil
}

// ClearRetry removes the row's next_attempt_at.
func (s *Store) ClearRetry(_ context.Context, delID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
	}
	d.NextAttemptAt = nil
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyEndpoint(ep *endpoint.Endpoint) *endpoint.Endpoint {
	cp := *ep
	cp.Events = slices.Clone(ep.Events)
	cp.Headers = maps.Clone(ep.Headers)
	return &cp
}

func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	cp.Payload = slices.Clone(d.Payload)
	if d.NextAttemptAt != nil {
		t := *d.NextAttemptAt
		cp.NextAttemptAt = &t
	}
	return &cp
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}

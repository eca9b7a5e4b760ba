// Package postgres implements store.Store on PostgreSQL through Grove.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
)

// compile-time interface check
var _ heraldstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("herald/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("herald/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Endpoint Store ====================

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	_, err := s.pg.NewInsert(toWebhookModel(ep)).Exec(ctx)
	return err
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(webhookModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", epID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", herald.ErrWebhookNotFound, epID)
		}
		return nil, err
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toWebhookModel(ep)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrWebhookNotFound, ep.ID)
}

// DeleteEndpoint removes the endpoint only. Its ledger rows stay.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.pg.NewDelete((*webhookModel)(nil)).
		Where("id = $1", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrWebhookNotFound, epID)
}

func (s *Store) ListEndpoints(ctx context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []webhookModel
	q := s.pg.NewSelect(&models).Where("organization_id = $1", orgID)
	if opts.Enabled != nil {
		q = q.Where("enabled = $2", *opts.Enabled)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromWebhookModels(models, nil)
}

// Resolve loads the organization's enabled endpoints and keeps those whose
// subscriptions accept eventType, in registration order.
func (s *Store) Resolve(ctx context.Context, orgID, eventType string) ([]*endpoint.Endpoint, error) {
	var models []webhookModel
	if err := s.pg.NewSelect(&models).
		Where("organization_id = $1", orgID).
		Where("enabled = true").
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return fromWebhookModels(models, func(ep *endpoint.Endpoint) bool {
		return ep.Subscribes(eventType)
	})
}

func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	res, err := s.pg.NewUpdate((*webhookModel)(nil)).
		Set("enabled = $1", enabled).
		Set("updated_at = $2", time.Now().UTC()).
		Where("id = $3", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrWebhookNotFound, epID)
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	_, err := s.pg.NewInsert(toDeliveryModel(d)).Exec(ctx)
	return err
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrDeliveryNotFound, d.ID)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListDeliveries(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.OrganizationID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("organization_id = $%d", argIdx), opts.OrganizationID)
	}
	if !opts.WebhookID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("webhook_id = $%d", argIdx), opts.WebhookID.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

// DequeueRetries claims due failed rows with FOR UPDATE SKIP LOCKED and
// pushes their next_attempt_at past the lease in the same statement, so
// concurrent pollers never claim the same row.
func (s *Store) DequeueRetries(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	err := s.pg.NewRaw(`
		UPDATE herald_deliveries
		SET next_attempt_at = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM herald_deliveries
			WHERE status = 'failed' AND next_attempt_at IS NOT NULL AND next_attempt_at <= $2
			ORDER BY next_attempt_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now.Add(lease), now, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

// RenewRetry extends the lease of a row that is still queued.
func (s *Store) RenewRetry(ctx context.Context, delID id.ID, until time.Time) error {
	_, err := s.pg.NewUpdate((*deliveryModel)(nil)).
		Set("next_attempt_at = $1", until.UTC()).
		Set("updated_at = $2", time.Now().UTC()).
		Where("id = $3", delID.String()).
		Where("status = 'failed' AND next_attempt_at IS NOT NULL").
		Exec(ctx)
	return err
}

func (s *Store) ClearRetry(ctx context.Context, delID id.ID) error {
	res, err := s.pg.NewUpdate((*deliveryModel)(nil)).
		Set("next_attempt_at = NULL").
		Set("updated_at = $1", time.Now().UTC()).
		Where("id = $2", delID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrDeliveryNotFound, delID)
}

// ==================== Helpers ====================

func fromWebhookModels(models []webhookModel, keep func(*endpoint.Endpoint) bool) ([]*endpoint.Endpoint, error) {
	result := make([]*endpoint.Endpoint, 0, len(models))
	for i := range models {
		ep, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(ep) {
			result = append(result, ep)
		}
	}
	return result, nil
}

// execResult is the part of a grove exec result mustAffect needs.
type execResult interface {
	RowsAffected() (int64, error)
}

func mustAffect(res execResult, notFound error, key id.ID) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", notFound, key)
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Package sqlite implements store.Store on SQLite through Grove.
//
// Lists order by rowid, which follows insertion order, because SQLite's
// text timestamps only resolve to the second.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
)

// compile-time interface check
var _ heraldstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open connects to the SQLite database at dsn (a file path or a
// "file:" URI) and returns a store on it. Call Migrate before use.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("herald/sqlite: open %s: %w", dsn, err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		return nil, fmt.Errorf("herald/sqlite: open grove: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("herald/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("herald/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(toWebhookModel(ep)).Exec(ctx)
	return err
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(webhookModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", epID.String()).
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
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrWebhookNotFound, ep.ID)
}

// DeleteEndpoint removes the endpoint only. Its ledger rows stay.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.sdb.NewDelete((*webhookModel)(nil)).
		Where("id = ?", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrWebhookNotFound, epID)
}

func (s *Store) ListEndpoints(ctx context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []webhookModel
	q := s.sdb.NewSelect(&models).Where("organization_id = ?", orgID)
	if opts.Enabled != nil {
		q = q.Where("enabled = ?", *opts.Enabled)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("rowid DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromWebhookModels(models, nil)
}

func (s *Store) Resolve(ctx context.Context, orgID, eventType string) ([]*endpoint.Endpoint, error) {
	var models []webhookModel
	if err := s.sdb.NewSelect(&models).
		Where("organization_id = ?", orgID).
		Where("enabled = 1").
		OrderExpr("rowid ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return fromWebhookModels(models, func(ep *endpoint.Endpoint) bool {
		return ep.Subscribes(eventType)
	})
}

func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	res, err := s.sdb.NewUpdate((*webhookModel)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", now()).
		Where("id = ?", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrWebhookNotFound, epID)
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	_, err := s.sdb.NewInsert(toDeliveryModel(d)).Exec(ctx)
	return err
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, herald.ErrDeliveryNotFound, d.ID)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", delID.String()).
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
	q := s.sdb.NewSelect(&models)
	if opts.OrganizationID != "" {
		q = q.Where("organization_id = ?", opts.OrganizationID)
	}
	if !opts.WebhookID.IsNil() {
		q = q.Where("webhook_id = ?", opts.WebhookID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("rowid DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

// DequeueRetries claims due failed rows. SQLite serializes writes, so the
// single UPDATE ... RETURNING is enough to keep pollers apart.
func (s *Store) DequeueRetries(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	err := s.sdb.NewRaw(`
		UPDATE herald_deliveries
		SET next_attempt_ms = ?
		WHERE id IN (
			SELECT id FROM herald_deliveries
			WHERE status = 'failed' AND next_attempt_ms IS NOT NULL AND next_attempt_ms <= ?
			ORDER BY next_attempt_ms ASC
			LIMIT ?
		)
		RETURNING *
	`, now.Add(lease).UnixMilli(), now.UnixMilli(), limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

func (s *Store) RenewRetry(ctx context.Context, delID id.ID, until time.Time) error {
	_, err := s.sdb.NewUpdate((*deliveryModel)(nil)).
		Set("next_attempt_ms = ?", until.UnixMilli()).
		Set("updated_at = ?", now()).
		Where("id = ?", delID.String()).
		Where("status = 'failed' AND next_attempt_ms IS NOT NULL").
		Exec(ctx)
	return err
}

func (s *Store) ClearRetry(ctx context.Context, delID id.ID) error {
	res, err := s.sdb.NewUpdate((*deliveryModel)(nil)).
		Set("next_attempt_ms = NULL").
		Set("updated_at = ?", now()).
		Where("id = ?", delID.String()).
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

func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

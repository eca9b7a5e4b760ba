package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

// CreateDelivery inserts a new attempt row.
func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	if _, err := s.mdb.NewInsert(toDeliveryModel(d)).Exec(ctx); err != nil {
		return fmt.Errorf("herald/mongo: create delivery: %w", err)
	}
	return nil
}

// UpdateDelivery replaces the row with the same ID.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: update delivery: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, d.ID)
	}
	return nil
}

// GetDelivery returns a row by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": delID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
		}
		return nil, fmt.Errorf("herald/mongo: get delivery: %w", err)
	}

	return fromDeliveryModel(&m)
}

// ListDeliveries returns rows matching opts, newest first.
func (s *Store) ListDeliveries(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel

	filter := bson.M{}
	if opts.OrganizationID != "" {
		filter["organization_id"] = opts.OrganizationID
	}
	if !opts.WebhookID.IsNil() {
		filter["webhook_id"] = opts.WebhookID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
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
		return nil, fmt.Errorf("herald/mongo: list deliveries: %w", err)
	}

	return fromDeliveryModels(models)
}

// DequeueRetries claims due rows one document at a time. Each
// FindOneAndUpdate moves next_attempt_at past the lease atomically, so a
// row claimed here is invisible to other pollers until the lease ends.
func (s *Store) DequeueRetries(ctx context.Context, at time.Time, limit int, lease time.Duration) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, limit)
	col := s.mdb.Collection(colDeliveries)
	at = at.UTC()

	for range limit {
		filter := bson.M{
			"status":          string(delivery.StatusFailed),
			"next_attempt_at": bson.M{"$ne": nil, "$lte": at},
		}
		update := bson.M{
			"$set": bson.M{
				"next_attempt_at": at.Add(lease),
				"updated_at":      now(),
			},
		}
		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})

		var m deliveryModel
		if err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
			if isNoDocuments(err) {
				break
			}
			return nil, fmt.Errorf("herald/mongo: dequeue retries: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return result, nil
}

// RenewRetry extends the lease of a row that is still queued.
func (s *Store) RenewRetry(ctx context.Context, delID id.ID, until time.Time) error {
	_, err := s.mdb.NewUpdate((*deliveryModel)(nil)).
		Filter(bson.M{
			"_id":             delID.String(),
			"status":          string(delivery.StatusFailed),
			"next_attempt_at": bson.M{"$ne": nil},
		}).
		Set("next_attempt_at", until.UTC()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: renew retry: %w", err)
	}
	return nil
}

// ClearRetry nulls next_attempt_at so the row is never claimed again.
func (s *Store) ClearRetry(ctx context.Context, delID id.ID) error {
	res, err := s.mdb.NewUpdate((*deliveryModel)(nil)).
		Filter(bson.M{"_id": delID.String()}).
		Set("next_attempt_at", nil).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: clear retry: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
	}
	return nil
}

func fromDeliveryModels(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

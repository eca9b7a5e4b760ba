package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis. The payload is
// kept as a string so the stored bytes are the bytes that were signed.
type deliveryModel struct {
	ID             string     `json:"id"`
	WebhookID      string     `json:"webhook_id"`
	OrganizationID string     `json:"organization_id"`
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	Payload        string     `json:"payload"`
	Attempt        int        `json:"attempt"`
	MaxAttempts    int        `json:"max_attempts"`
	Status         string     `json:"status"`
	StatusCode     int        `json:"status_code"`
	ResponseTimeMs int64      `json:"response_time_ms"`
	ErrorMessage   string     `json:"error_message"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
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

// claimScript atomically claims due retries by re-scoring them to the end
// of the lease.
// KEYS[1] = herald:z:del:retry
// ARGV[1] = now (unix ms)
// ARGV[2] = lease expiry (unix ms)
// ARGV[3] = limit
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], 'XX', ARGV[2], id)
end
return ids
`)

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)

	if err := s.setEntity(ctx, entityKey(prefixDelivery, m.ID), m); err != nil {
		return fmt.Errorf("herald/redis: create delivery: %w", err)
	}

	score := scoreFromTime(m.CreatedAt)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDeliveryAll, goredis.Z{Score: score, Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryOrg+m.OrganizationID, goredis.Z{Score: score, Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryWh+m.WebhookID, goredis.Z{Score: score, Member: m.ID})
	queueRetry(ctx, pipe, m)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: create delivery indexes: %w", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	key := entityKey(prefixDelivery, d.ID.String())

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("herald/redis: update delivery get: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, d.ID)
	}

	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("herald/redis: update delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	queueRetry(ctx, pipe, m)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: update delivery index: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
		}
		return nil, fmt.Errorf("herald/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

// ListDeliveries walks the narrowest index for opts and filters the rest
// in memory.
func (s *Store) ListDeliveries(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	index := zDeliveryAll
	switch {
	case !opts.WebhookID.IsNil():
		index = zDeliveryWh + opts.WebhookID.String()
	case opts.OrganizationID != "":
		index = zDeliveryOrg + opts.OrganizationID
	}

	ids, err := s.members(ctx, index, true)
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list deliveries: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.OrganizationID != "" && m.OrganizationID != opts.OrganizationID {
			continue
		}
		if opts.Status != "" && delivery.Status(m.Status) != opts.Status {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DequeueRetries claims due ids with claimScript, then records the lease
// on each row so readers see the same next_attempt_at as the queue.
func (s *Store) DequeueRetries(ctx context.Context, at time.Time, limit int, lease time.Duration) ([]*delivery.Delivery, error) {
	until := at.Add(lease).UTC()
	ids, err := claimScript.Run(ctx, s.rdb, []string{zDeliveryDue},
		strconv.FormatInt(at.UnixMilli(), 10),
		strconv.FormatInt(until.UnixMilli(), 10),
		limit,
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("herald/redis: dequeue retries: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		key := entityKey(prefixDelivery, entryID)

		var m deliveryModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				s.rdb.ZRem(ctx, zDeliveryDue, entryID)
				continue
			}
			return nil, fmt.Errorf("herald/redis: dequeue get: %w", err)
		}

		m.NextAttemptAt = &until
		m.UpdatedAt = now()
		if err := s.setEntity(ctx, key, &m); err != nil {
			return nil, fmt.Errorf("herald/redis: dequeue update: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// RenewRetry extends the lease of a row that is still queued. ZADD XX
// never re-adds a member that ClearRetry already removed.
func (s *Store) RenewRetry(ctx context.Context, delID id.ID, until time.Time) error {
	key := entityKey(prefixDelivery, delID.String())

	var m deliveryModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
		}
		return fmt.Errorf("herald/redis: renew retry get: %w", err)
	}
	if m.Status != string(delivery.StatusFailed) || m.NextAttemptAt == nil {
		return nil
	}

	until = until.UTC()
	m.NextAttemptAt = &until
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("herald/redis: renew retry: %w", err)
	}
	err := s.rdb.ZAddXX(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(until), Member: m.ID}).Err()
	if err != nil {
		return fmt.Errorf("herald/redis: renew retry index: %w", err)
	}
	return nil
}

func (s *Store) ClearRetry(ctx context.Context, delID id.ID) error {
	key := entityKey(prefixDelivery, delID.String())

	var m deliveryModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", herald.ErrDeliveryNotFound, delID)
		}
		return fmt.Errorf("herald/redis: clear retry get: %w", err)
	}

	m.NextAttemptAt = nil
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("herald/redis: clear retry: %w", err)
	}
	if err := s.rdb.ZRem(ctx, zDeliveryDue, m.ID).Err(); err != nil {
		return fmt.Errorf("herald/redis: clear retry index: %w", err)
	}
	return nil
}

// queueRetry keeps the retry set in step with a row: failed rows with a
// next attempt are scored by it, every other row is removed.
func queueRetry(ctx context.Context, pipe goredis.Pipeliner, m *deliveryModel) {
	if m.Status == string(delivery.StatusFailed) && m.NextAttemptAt != nil {
		pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(*m.NextAttemptAt), Member: m.ID})
		return
	}
	pipe.ZRem(ctx, zDeliveryDue, m.ID)
}

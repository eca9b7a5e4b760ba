package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/observability"
)

// Ledger records delivery attempts. Each attempt owns exactly one row;
// the Mark methods only ever update that row.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, logger *slog.Logger, metrics *observability.Metrics) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Open inserts the pending row for an attempt that is about to be made.
func (l *Ledger) Open(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, payload []byte, attempt, maxAttempts int) (*Delivery, error) {
	d := &Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		WebhookID:      ep.ID,
		OrganizationID: ep.OrganizationID,
		EventID:        evt.ID,
		EventType:      evt.Type,
		Payload:        payload,
		Attempt:        attempt,
		MaxAttempts:    maxAttempts,
		Status:         StatusPending,
	}
	if err := l.store.CreateDelivery(ctx, d); err != nil {
		return nil, l.fail(ctx, "open", d, err)
	}
	return d, nil
}

// MarkDelivered records a successful attempt.
func (l *Ledger) MarkDelivered(ctx context.Context, d *Delivery, statusCode int, latencyMs int64) error {
	now := l.now()
	d.Status = StatusDelivered
	d.StatusCode = statusCode
	d.ResponseTimeMs = latencyMs
	d.DeliveredAt = &now
	d.UpdatedAt = now
	return l.write(ctx, "delivered", d)
}

// MarkFailed records a failed attempt. A non-nil next stores when the
// follow-up attempt is due.
func (l *Ledger) MarkFailed(ctx context.Context, d *Delivery, statusCode int, latencyMs int64, errMsg string, next *time.Time) error {
	now := l.now()
	d.Status = StatusFailed
	d.StatusCode = statusCode
	d.ResponseTimeMs = latencyMs
	d.ErrorMessage = errMsg
	d.FailedAt = &now
	d.NextAttemptAt = next
	d.UpdatedAt = now
	return l.write(ctx, "failed", d)
}

// MarkDeadLetter moves a failed row to dead_letter.
func (l *Ledger) MarkDeadLetter(ctx context.Context, d *Delivery) error {
	d.Status = StatusDeadLetter
	d.NextAttemptAt = nil
	d.UpdatedAt = l.now()
	return l.write(ctx, "dead_letter", d)
}

// Get returns one row.
func (l *Ledger) Get(ctx context.Context, delID id.ID) (*Delivery, error) {
	return l.store.GetDelivery(ctx, delID)
}

// List returns rows newest first.
func (l *Ledger) List(ctx context.Context, opts ListOpts) ([]*Delivery, error) {
	return l.store.ListDeliveries(ctx, opts)
}

func (l *Ledger) write(ctx context.Context, op string, d *Delivery) error {
	if err := l.store.UpdateDelivery(ctx, d); err != nil {
		return l.fail(ctx, op, d, err)
	}
	return nil
}

func (l *Ledger) fail(ctx context.Context, op string, d *Delivery, err error) error {
	l.metrics.RecordLedgerError()
	l.logger.ErrorContext(ctx, "delivery ledger write failed",
		"op", op,
		"delivery_id", d.ID,
		"webhook_id", d.WebhookID,
		"event_id", d.EventID,
		"attempt", d.Attempt,
		"error", err,
	)
	return fmt.Errorf("%w: %s %s: %w", ErrLedgerWrite, op, d.ID, err)
}

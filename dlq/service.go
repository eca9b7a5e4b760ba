// Package dlq inspects and replays dead-lettered deliveries.
//
// The ledger is the dead-letter queue: a chain ends in a row with status
// dead_letter. Replay starts a fresh chain for the same event and endpoint.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
)

// ErrNotDeadLettered is returned when replaying a row that did not end its
// chain in dead_letter.
var ErrNotDeadLettered = errors.New("herald: delivery is not dead-lettered")

// ListOpts configures filtering and pagination for dead-letter listing.
type ListOpts struct {
	WebhookID id.ID
	Offset    int
	Limit     int
}

// Service manages the dead letter queue.
type Service struct {
	ledger     *delivery.Ledger
	dispatcher *delivery.Dispatcher
	logger     *slog.Logger
}

// NewService creates a new DLQ service.
func NewService(ledger *delivery.Ledger, dispatcher *delivery.Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:     ledger,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// List returns the organization's dead-lettered rows, newest first.
func (svc *Service) List(ctx context.Context, orgID string, opts ListOpts) ([]*delivery.Delivery, error) {
	return svc.ledger.List(ctx, delivery.ListOpts{
		OrganizationID: orgID,
		WebhookID:      opts.WebhookID,
		Status:         delivery.StatusDeadLetter,
		Offset:         opts.Offset,
		Limit:          opts.Limit,
	})
}

// Replay re-dispatches the payload of a dead-lettered row as a new chain
// starting at attempt 1 with the row's attempt budget. The event id is
// kept so receivers can deduplicate.
func (svc *Service) Replay(ctx context.Context, orgID string, deliveryID id.ID) (*delivery.Result, error) {
	d, err := svc.ledger.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d.OrganizationID != orgID {
		return nil, fmt.Errorf("%w: %s", delivery.ErrNotFound, deliveryID)
	}
	if d.Status != delivery.StatusDeadLetter {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDeadLettered, deliveryID, d.Status)
	}

	var evt event.Event
	if err := json.Unmarshal(d.Payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: stored payload: %w", event.ErrInvalid, err)
	}

	maxAttempts := d.MaxAttempts
	res, err := svc.dispatcher.Dispatch(ctx, delivery.Request{
		WebhookID:  d.WebhookID,
		Event:      &evt,
		Attempt:    1,
		MaxRetries: &maxAttempts,
	})
	if err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "dead letter replayed",
		"delivery_id", deliveryID,
		"webhook_id", d.WebhookID,
		"event_id", evt.ID,
		"status", res.Status,
		"new_delivery_id", res.DeliveryID,
	)
	return res, nil
}

package delivery

import (
	"context"
	"time"

	"github.com/xraph/herald/id"
)

// Store defines the persistence contract for the delivery ledger.
type Store interface {
	// CreateDelivery inserts a new attempt row.
	CreateDelivery(ctx context.Context, d *Delivery) error

	// UpdateDelivery replaces the row with the same ID.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a row by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListDeliveries returns rows matching opts, newest first.
	ListDeliveries(ctx context.Context, opts ListOpts) ([]*Delivery, error)

	// DequeueRetries claims up to limit failed rows whose next_attempt_at
	// is at or before now by pushing next_attempt_at to now+lease. A row is
	// handed to at most one caller per lease.
	DequeueRetries(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Delivery, error)

	// RenewRetry pushes the lease on a claimed row to until. Rows that are
	// no longer queued are left alone.
	RenewRetry(ctx context.Context, delID id.ID, until time.Time) error

	// ClearRetry sets next_attempt_at to NULL once the follow-up attempt
	// has been made.
	ClearRetry(ctx context.Context, delID id.ID) error
}

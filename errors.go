package herald

import (
	"errors"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/store"
)

// Sentinel errors returned by Herald operations. Several are defined by the
// package that produces them and re-exported here; test with errors.Is.
var (
	// ErrNoStore is returned when Herald is created without a store.
	ErrNoStore = errors.New("herald: store is required")

	// ErrWebhookNotFound is returned for unknown endpoints, endpoints of
	// another organization and, on dispatch, disabled endpoints.
	ErrWebhookNotFound = endpoint.ErrNotFound

	// ErrNotSubscribed is returned when dispatching an event type the
	// endpoint does not subscribe to.
	ErrNotSubscribed = delivery.ErrNotSubscribed

	// ErrDeliveryNotFound is returned when a ledger row cannot be found.
	ErrDeliveryNotFound = delivery.ErrNotFound

	// ErrLedgerWrite is returned when an attempt could not be recorded.
	ErrLedgerWrite = delivery.ErrLedgerWrite

	// ErrNotDeadLettered is returned when replaying a row that is not in
	// dead_letter.
	ErrNotDeadLettered = dlq.ErrNotDeadLettered

	// ErrUnknownEventType is returned by a strict catalog for unregistered
	// event types.
	ErrUnknownEventType = catalog.ErrUnknownType

	// ErrInvalidPayload is returned when event data fails schema validation.
	ErrInvalidPayload = catalog.ErrInvalidPayload

	// ErrInvalidEvent is returned for events missing an id or type.
	ErrInvalidEvent = event.ErrInvalid

	// ErrStoreClosed is returned when a store is used after Close.
	ErrStoreClosed = store.ErrClosed

	// ErrStopped is returned when work is submitted after Stop.
	ErrStopped = delivery.ErrStopped
)

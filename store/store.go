// Package store defines the composite Store interface for all Herald
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them. Backends live in sub-packages.
package store

import (
	"context"
	"errors"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
)

// ErrClosed is returned when a store is used after Close.
var ErrClosed = errors.New("herald: store is closed")

// Store is the aggregate persistence interface.
type Store interface {
	endpoint.Store
	delivery.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

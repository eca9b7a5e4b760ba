package delivery

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/scope"
)

// ErrStopped is returned when work is submitted after Stop.
var ErrStopped = errors.New("herald: dispatcher stopped")

// Resolver finds the endpoints that should receive an event.
type Resolver interface {
	Resolve(ctx context.Context, orgID, eventType string) ([]*endpoint.Endpoint, error)
}

// Broadcaster fans one event out to every enabled, subscribed endpoint of
// an organization. Each endpoint gets its own detached dispatch task; a
// failure or panic in one task never reaches the others or the caller.
type Broadcaster struct {
	resolver   Resolver
	dispatcher *Dispatcher
	metrics    *observability.Metrics
	logger     *slog.Logger

	sem     chan struct{}
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewBroadcaster creates a broadcaster running at most concurrency
// dispatch tasks at once.
func NewBroadcaster(resolver Resolver, dispatcher *Dispatcher, concurrency int, metrics *observability.Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Broadcaster{
		resolver:   resolver,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		sem:        make(chan struct{}, concurrency),
	}
}

// Broadcast starts a first attempt for every matching endpoint and returns
// the number of endpoints matched without waiting for any outcome.
func (b *Broadcaster) Broadcast(ctx context.Context, orgID string, evt *event.Event) (int, error) {
	if err := evt.Validate(); err != nil {
		return 0, err
	}

	eps, err := b.resolver.Resolve(ctx, orgID, evt.Type)
	if err != nil {
		return 0, err
	}

	ctx = scope.WithOrganization(ctx, orgID)
	for i, ep := range eps {
		req := Request{WebhookID: ep.ID, Event: evt, Attempt: 1}
		if err := b.Go(ctx, func(ctx context.Context) {
			if _, err := b.dispatcher.Dispatch(ctx, req); err != nil {
				b.logger.ErrorContext(ctx, "broadcast dispatch failed",
					"webhook_id", req.WebhookID, "event_id", evt.ID, "error", err)
			}
		}); err != nil {
			return i, err
		}
	}

	b.metrics.RecordBroadcast(len(eps))
	b.logger.InfoContext(ctx, "event broadcast",
		"organization_id", orgID, "event_id", evt.ID, "event_type", evt.Type, "webhook_count", len(eps))
	return len(eps), nil
}

// Go runs fn as a detached, panic-isolated task. fn's context keeps the
// values of ctx but is never cancelled by it.
func (b *Broadcaster) Go(ctx context.Context, fn func(ctx context.Context)) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrStopped
	}

	orgID := scope.Capture(ctx)
	detached := context.WithoutCancel(ctx)

	b.wg.Add(1)
	b.metrics.TaskStarted()
	go func() {
		defer b.wg.Done()
		defer b.metrics.TaskDone()
		defer func() {
			if r := recover(); r != nil {
				b.logger.ErrorContext(detached, "dispatch task panicked",
					"organization_id", orgID, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		b.sem <- struct{}{}
		defer func() { <-b.sem }()

		fn(detached)
	}()
	return nil
}

// Stop rejects new tasks and waits for running ones, or until ctx is done.
func (b *Broadcaster) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

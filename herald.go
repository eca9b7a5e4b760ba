package herald

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/ratelimit"
	"github.com/xraph/herald/store"
)

// Herald is the root of the dispatch pipeline.
type Herald struct {
	config     Config
	store      store.Store
	logger     *slog.Logger
	backoff    backoff.Calculator
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	httpClient *http.Client
	executor   delivery.Executor

	catalog     *catalog.Catalog
	endpointSvc *endpoint.Service
	ledger      *delivery.Ledger
	dispatcher  *delivery.Dispatcher
	broadcaster *delivery.Broadcaster
	scheduler   *delivery.Scheduler
	dlqSvc      *dlq.Service
}

// New creates a Herald with the given options.
func New(opts ...Option) (*Herald, error) {
	h := &Herald{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if err := h.wireServices(); err != nil {
		return nil, err
	}
	return h, nil
}

// wireServices builds the pipeline after options have been applied.
func (h *Herald) wireServices() error {
	policy, err := delivery.ParseRetryPolicy(h.config.RetryPolicy)
	if err != nil {
		return err
	}

	h.catalog = catalog.New(catalog.Config{Strict: h.config.StrictEventTypes}, h.logger)
	h.catalog.MustRegister(catalog.Builtin()...)

	h.endpointSvc = endpoint.NewService(h.store, endpoint.Config{
		DefaultRetryCount:     h.config.DefaultRetryCount,
		DefaultTimeoutSeconds: int(h.config.DefaultTimeout.Seconds()),
	}, h.logger)

	if h.executor == nil {
		h.executor = delivery.NewSender(delivery.SenderConfig{
			UserAgent: h.config.UserAgent,
			Client:    h.httpClient,
			Limiter:   ratelimit.New(),
		})
	}

	h.ledger = delivery.NewLedger(h.store, h.logger, h.metrics)
	h.dispatcher = delivery.NewDispatcher(delivery.DispatcherConfig{
		Endpoints: h.store,
		Ledger:    h.ledger,
		Executor:  h.executor,
		Retrier:   delivery.NewRetrier(policy, h.backoff),
		Metrics:   h.metrics,
		Tracer:    h.tracer,
	}, h.logger)

	h.broadcaster = delivery.NewBroadcaster(h.store, h.dispatcher, h.config.Concurrency, h.metrics, h.logger)
	h.scheduler = delivery.NewScheduler(h.store, h.dispatcher, delivery.SchedulerConfig{
		PollInterval: h.config.PollInterval,
		BatchSize:    h.config.BatchSize,
		Concurrency:  h.config.Concurrency,
		ClaimLease:   h.config.ClaimLease,
	}, h.logger)

	h.dlqSvc = dlq.NewService(h.ledger, h.dispatcher, h.logger)
	return nil
}

// Start begins polling for due retries.
func (h *Herald) Start(ctx context.Context) {
	h.scheduler.Start(ctx)
	h.logger.InfoContext(ctx, "herald started",
		"poll_interval", h.config.PollInterval,
		"concurrency", h.config.Concurrency,
	)
}

// Stop stops the scheduler and waits for in-flight dispatches, bounded by
// ShutdownTimeout and ctx.
func (h *Herald) Stop(ctx context.Context) error {
	if h.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.ShutdownTimeout)
		defer cancel()
	}

	err := errors.Join(
		h.scheduler.Stop(ctx),
		h.broadcaster.Stop(ctx),
	)
	if err != nil {
		h.logger.WarnContext(ctx, "herald stopped with work in flight", "error", err)
		return err
	}
	h.logger.InfoContext(ctx, "herald stopped")
	return nil
}

// Dispatch validates the event against the catalog and makes one delivery
// attempt. Delivered, retry_scheduled and dead_letter are all reported
// through the Result; an error means no attempt was recorded.
func (h *Herald) Dispatch(ctx context.Context, req delivery.Request) (*delivery.Result, error) {
	if err := h.prepare(req.Event); err != nil {
		return nil, err
	}
	return h.dispatcher.Dispatch(ctx, req)
}

// Broadcast sends evt to every enabled endpoint of orgID that subscribes to
// its type and returns how many were matched. Outcomes are recorded in the
// ledger; Broadcast does not wait for them.
func (h *Herald) Broadcast(ctx context.Context, orgID string, evt *event.Event) (int, error) {
	if err := h.prepare(evt); err != nil {
		return 0, err
	}
	if evt.Type == event.WebhookTest {
		return 0, fmt.Errorf("%w: %s is sent with TestWebhook", ErrInvalidEvent, event.WebhookTest)
	}
	return h.broadcaster.Broadcast(ctx, orgID, evt)
}

// TestWebhook sends a synthetic webhook.test event to one endpoint of orgID.
// It returns once the dispatch has started; the outcome appears in the
// ledger under the returned event's id. A disabled endpoint is rejected
// with ErrWebhookNotFound, as Dispatch would.
func (h *Herald) TestWebhook(ctx context.Context, orgID string, webhookID id.ID) (*event.Event, error) {
	ep, err := h.endpointSvc.Get(ctx, orgID, webhookID)
	if err != nil {
		return nil, err
	}
	if !ep.Enabled {
		return nil, fmt.Errorf("%w: %s is disabled", ErrWebhookNotFound, ep.ID)
	}

	evt := event.NewTest()
	req := delivery.Request{WebhookID: ep.ID, Event: evt, Attempt: 1}
	err = h.broadcaster.Go(ctx, func(ctx context.Context) {
		if _, err := h.dispatcher.Dispatch(ctx, req); err != nil {
			h.logger.ErrorContext(ctx, "test dispatch failed",
				"webhook_id", ep.ID, "event_id", evt.ID, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func (h *Herald) prepare(evt *event.Event) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	evt.Normalize()
	return h.catalog.Validate(evt)
}

// Endpoints returns the endpoint registry.
func (h *Herald) Endpoints() *endpoint.Service { return h.endpointSvc }

// Ledger returns the delivery ledger.
func (h *Herald) Ledger() *delivery.Ledger { return h.ledger }

// DLQ returns the dead-letter service.
func (h *Herald) DLQ() *dlq.Service { return h.dlqSvc }

// Catalog returns the event type catalog.
func (h *Herald) Catalog() *catalog.Catalog { return h.catalog }

// Scheduler returns the retry scheduler.
func (h *Herald) Scheduler() *delivery.Scheduler { return h.scheduler }

// Store returns the underlying store.
func (h *Herald) Store() store.Store { return h.store }

// Config returns the effective configuration.
func (h *Herald) Config() Config { return h.config }

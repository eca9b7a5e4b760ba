package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/observability"
)

// ResultStatus is the outcome reported by Dispatch.
type ResultStatus string

// Dispatch outcomes. All three are normal results, not errors.
const (
	ResultDelivered      ResultStatus = "delivered"
	ResultRetryScheduled ResultStatus = "retry_scheduled"
	ResultDeadLetter     ResultStatus = "dead_letter"
)

// Request asks for one attempt of one event to one endpoint.
type Request struct {
	WebhookID id.ID
	Event     *event.Event

	// Attempt is 1-based. Zero means 1.
	Attempt int

	// MaxRetries overrides the endpoint's retry_count when set.
	MaxRetries *int
}

// Result reports what Dispatch did.
type Result struct {
	Status        ResultStatus `json:"status"`
	DeliveryID    id.ID        `json:"delivery_id"`
	NextAttempt   int          `json:"next_attempt,omitempty"`
	RetryDelayMs  int64        `json:"retry_delay_ms,omitempty"`
	NextAttemptAt *time.Time   `json:"next_attempt_at,omitempty"`
}

// EndpointGetter loads endpoints by id.
type EndpointGetter interface {
	GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error)
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Endpoints EndpointGetter
	Ledger    *Ledger
	Executor  Executor
	Retrier   *Retrier
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// Dispatcher runs one attempt of one event against one endpoint and
// records it in the ledger.
type Dispatcher struct {
	endpoints EndpointGetter
	ledger    *Ledger
	executor  Executor
	retrier   *Retrier
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Executor == nil {
		cfg.Executor = NewSender(SenderConfig{})
	}
	if cfg.Retrier == nil {
		cfg.Retrier = NewRetrier(RetryAll, nil)
	}
	return &Dispatcher{
		endpoints: cfg.Endpoints,
		ledger:    cfg.Ledger,
		executor:  cfg.Executor,
		retrier:   cfg.Retrier,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch makes a single delivery attempt.
//
// It fails with endpoint.ErrNotFound when the endpoint is missing or
// disabled and with ErrNotSubscribed when it does not want the event type;
// neither writes a ledger row. Otherwise a pending row is written, the
// attempt is executed, and the row ends delivered, failed with a scheduled
// retry, or dead_letter.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	evt := req.Event
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}

	ep, err := d.endpoints.GetEndpoint(ctx, req.WebhookID)
	if err != nil {
		return nil, err
	}
	if !ep.Enabled {
		return nil, fmt.Errorf("%w: %s is disabled", endpoint.ErrNotFound, ep.ID)
	}
	if !ep.Subscribes(evt.Type) {
		return nil, fmt.Errorf("%w: %s does not receive %q", ErrNotSubscribed, ep.ID, evt.Type)
	}

	maxAttempts := ep.MaxAttempts()
	if req.MaxRetries != nil && *req.MaxRetries > 0 {
		maxAttempts = *req.MaxRetries
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %w", event.ErrInvalid, err)
	}

	ctx, span := d.tracer.StartDispatchSpan(ctx, ep.ID.String(), evt.ID, evt.Type, attempt)

	row, err := d.ledger.Open(ctx, ep, evt, payload, attempt, maxAttempts)
	if err != nil {
		d.tracer.EndDispatchSpan(span, "ledger_error", 0, 0, err)
		return nil, err
	}

	resp, sendErr := d.executor.Deliver(ctx, ep, evt, payload, attempt)
	d.metrics.RecordAttempt(sendErr == nil, float64(resp.LatencyMs)/1000)

	res, err := d.settle(ctx, row, resp, sendErr)
	if err != nil {
		d.tracer.EndDispatchSpan(span, "ledger_error", resp.StatusCode, resp.LatencyMs, err)
		return nil, err
	}

	d.metrics.RecordDispatch(string(res.Status))
	d.tracer.EndDispatchSpan(span, string(res.Status), resp.StatusCode, resp.LatencyMs, sendErr)
	return res, nil
}

// settle writes the attempt's outcome to its row.
func (d *Dispatcher) settle(ctx context.Context, row *Delivery, resp Response, sendErr error) (*Result, error) {
	log := d.logger.With(
		"delivery_id", row.ID,
		"webhook_id", row.WebhookID,
		"event_id", row.EventID,
		"event_type", row.EventType,
		"attempt", row.Attempt,
	)

	switch d.retrier.Decide(sendErr, row.Attempt, row.MaxAttempts) {
	case Delivered:
		if err := d.ledger.MarkDelivered(ctx, row, resp.StatusCode, resp.LatencyMs); err != nil {
			return nil, err
		}
		log.DebugContext(ctx, "delivered", "status", resp.StatusCode, "latency_ms", resp.LatencyMs)
		return &Result{Status: ResultDelivered, DeliveryID: row.ID}, nil

	case Retry:
		delay := d.retrier.Delay(row.Attempt)
		next := d.now().Add(delay)
		if err := d.ledger.MarkFailed(ctx, row, resp.StatusCode, resp.LatencyMs, sendErr.Error(), &next); err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "delivery failed, retry scheduled",
			"status", resp.StatusCode, "error", sendErr, "retry_delay_ms", delay.Milliseconds())
		return &Result{
			Status:        ResultRetryScheduled,
			DeliveryID:    row.ID,
			NextAttempt:   row.Attempt + 1,
			RetryDelayMs:  delay.Milliseconds(),
			NextAttemptAt: &next,
		}, nil

	default:
		if err := d.ledger.MarkFailed(ctx, row, resp.StatusCode, resp.LatencyMs, sendErr.Error(), nil); err != nil {
			return nil, err
		}
		if err := d.ledger.MarkDeadLetter(ctx, row); err != nil {
			return nil, err
		}
		log.WarnContext(ctx, "delivery dead-lettered",
			"status", resp.StatusCode, "error", sendErr, "max_attempts", row.MaxAttempts)
		return &Result{Status: ResultDeadLetter, DeliveryID: row.ID}, nil
	}
}

// stopsChain reports whether a dispatch error means the chain can never
// continue (endpoint gone, disabled or no longer subscribed).
func stopsChain(err error) bool {
	return errors.Is(err, endpoint.ErrNotFound) ||
		errors.Is(err, ErrNotSubscribed) ||
		errors.Is(err, event.ErrInvalid)
}

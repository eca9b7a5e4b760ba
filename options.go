package herald

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/store"
)

// Option configures a Herald instance.
type Option func(*Herald) error

// WithConfig replaces the whole configuration. Options applied after it
// still override individual fields.
func WithConfig(cfg Config) Option {
	return func(h *Herald) error {
		h.config = cfg
		return nil
	}
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(h *Herald) error {
		h.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Herald) error {
		h.logger = logger
		return nil
	}
}

// WithConcurrency caps concurrently running dispatch tasks.
func WithConcurrency(n int) Option {
	return func(h *Herald) error {
		h.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the scheduler looks for due retries.
func WithPollInterval(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of retries claimed per poll.
func WithBatchSize(n int) Option {
	return func(h *Herald) error {
		h.config.BatchSize = n
		return nil
	}
}

// WithClaimLease sets how long a claimed retry stays hidden.
func WithClaimLease(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.ClaimLease = d
		return nil
	}
}

// WithUserAgent sets the User-Agent sent with deliveries.
func WithUserAgent(ua string) Option {
	return func(h *Herald) error {
		h.config.UserAgent = ua
		return nil
	}
}

// WithBackoff replaces the exponential backoff calculator.
func WithBackoff(calc backoff.Calculator) Option {
	return func(h *Herald) error {
		h.backoff = calc
		return nil
	}
}

// WithRetryPolicy selects which failures are retried.
func WithRetryPolicy(p delivery.RetryPolicy) Option {
	return func(h *Herald) error {
		h.config.RetryPolicy = p.String()
		return nil
	}
}

// WithDefaultRetryCount sets the attempt budget of new endpoints.
func WithDefaultRetryCount(n int) Option {
	return func(h *Herald) error {
		h.config.DefaultRetryCount = n
		return nil
	}
}

// WithDefaultTimeout sets the per-attempt timeout of new endpoints.
func WithDefaultTimeout(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.DefaultTimeout = d
		return nil
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight work.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Herald) error {
		h.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry spans around dispatch attempts.
func WithTracer(t *observability.Tracer) Option {
	return func(h *Herald) error {
		h.tracer = t
		return nil
	}
}

// WithHTTPClient sets the client used by the default sender.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Herald) error {
		h.httpClient = c
		return nil
	}
}

// WithStrictEventTypes rejects events whose type is not in the catalog or
// whose data fails the type's schema.
func WithStrictEventTypes(strict bool) Option {
	return func(h *Herald) error {
		h.config.StrictEventTypes = strict
		return nil
	}
}

// WithExecutor replaces the HTTP sender. Mostly useful in tests.
func WithExecutor(e delivery.Executor) Option {
	return func(h *Herald) error {
		h.executor = e
		return nil
	}
}

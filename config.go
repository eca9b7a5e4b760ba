package herald

import "time"

// Config holds the configuration for a Herald instance. The mapstructure
// tags let hosts decode it from a config file.
type Config struct {
	// Concurrency caps concurrently running dispatch tasks, for both
	// broadcasts and scheduled retries.
	Concurrency int `mapstructure:"concurrency"`

	// PollInterval is how often the scheduler looks for due retries.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// BatchSize is the maximum number of retries claimed per poll.
	BatchSize int `mapstructure:"batch_size"`

	// ClaimLease hides a claimed retry from other pollers. It must exceed
	// the longest endpoint timeout.
	ClaimLease time.Duration `mapstructure:"claim_lease"`

	// UserAgent is sent with every delivery.
	UserAgent string `mapstructure:"user_agent"`

	// RetryPolicy is "all" or "transient".
	RetryPolicy string `mapstructure:"retry_policy"`

	// DefaultRetryCount is applied to endpoints created without one.
	DefaultRetryCount int `mapstructure:"default_retry_count"`

	// DefaultTimeout is applied to endpoints created without one.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`

	// StrictEventTypes rejects events whose type is not in the catalog and
	// events whose data fails the type's schema.
	StrictEventTypes bool `mapstructure:"strict_event_types"`

	// ShutdownTimeout bounds how long Stop waits for in-flight dispatches.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		PollInterval:      1 * time.Second,
		BatchSize:         50,
		ClaimLease:        2 * time.Minute,
		UserAgent:         "Herald-Webhooks/1.0",
		RetryPolicy:       "all",
		DefaultRetryCount: 3,
		DefaultTimeout:    30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

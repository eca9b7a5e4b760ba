package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/herald/event"
)

// SchedulerConfig holds poller settings.
type SchedulerConfig struct {
	// PollInterval is how often due retries are looked up.
	PollInterval time.Duration

	// BatchSize caps the rows claimed per poll.
	BatchSize int

	// Concurrency caps retries executed in parallel.
	Concurrency int

	// ClaimLease is how long a claimed row is hidden from other pollers.
	// The lease is renewed every third of ClaimLease while the attempt runs.
	ClaimLease time.Duration
}

func (c *SchedulerConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 2 * time.Minute
	}
}

// Scheduler polls the ledger for failed rows whose retry is due and runs
// the follow-up attempt. Because the due time lives in the store, retries
// survive restarts.
type Scheduler struct {
	store      Store
	dispatcher *Dispatcher
	config     SchedulerConfig
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a retry scheduler.
func NewScheduler(store Store, dispatcher *Dispatcher, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the poll loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight retries, or until
// ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "dequeue retries failed", "error", err)
			}
		}
	}
}

// RunOnce claims one batch of due retries, runs them and waits for them to
// finish. It returns the number of rows claimed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	batch, err := s.store.DequeueRetries(ctx, s.now(), s.config.BatchSize, s.config.ClaimLease)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup

	for _, row := range batch {
		select {
		case <-ctx.Done():
			wg.Wait()
			return len(batch), ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(d *Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			// A started attempt runs to completion even when Stop is called.
			s.retry(context.WithoutCancel(ctx), d)
		}(row)
	}

	wg.Wait()
	return len(batch), nil
}

// retry runs the attempt that follows the failed row d.
func (s *Scheduler) retry(ctx context.Context, d *Delivery) {
	log := s.logger.With(
		"delivery_id", d.ID,
		"webhook_id", d.WebhookID,
		"event_id", d.EventID,
		"attempt", d.Attempt+1,
	)

	var evt event.Event
	if err := json.Unmarshal(d.Payload, &evt); err != nil {
		log.ErrorContext(ctx, "stored payload unreadable, dropping retry", "error", err)
		s.clear(ctx, d)
		return
	}

	maxAttempts := d.MaxAttempts
	release := s.holdLease(ctx, d)
	_, err := s.dispatcher.Dispatch(ctx, Request{
		WebhookID:  d.WebhookID,
		Event:      &evt,
		Attempt:    d.Attempt + 1,
		MaxRetries: &maxAttempts,
	})
	release()
	switch {
	case err == nil:
	case stopsChain(err):
		log.InfoContext(ctx, "retry chain stopped", "reason", err)
	default:
		// Leave next_attempt_at in place; the row is offered again once
		// the lease expires.
		log.ErrorContext(ctx, "retry attempt failed", "error", err)
		return
	}

	s.clear(ctx, d)
}

// holdLease keeps d hidden from other pollers until release is called.
// An attempt can outlive ClaimLease (slow receiver, rate-limit wait), and a
// lapsed lease would let a second poller run the same attempt again.
func (s *Scheduler) holdLease(ctx context.Context, d *Delivery) (release func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.config.ClaimLease / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				until := s.now().Add(s.config.ClaimLease)
				if err := s.store.RenewRetry(ctx, d.ID, until); err != nil && ctx.Err() == nil {
					s.logger.WarnContext(ctx, "renew retry lease failed", "delivery_id", d.ID, "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Scheduler) clear(ctx context.Context, d *Delivery) {
	if err := s.store.ClearRetry(ctx, d.ID); err != nil {
		s.logger.ErrorContext(ctx, "clear retry failed", "delivery_id", d.ID, "error", err)
	}
}

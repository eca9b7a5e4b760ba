package delivery_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
)

func newScheduler(f *fixture) *delivery.Scheduler {
	return delivery.NewScheduler(f.store, f.dispatcher, delivery.SchedulerConfig{
		BatchSize:   10,
		Concurrency: 2,
		ClaimLease:  time.Minute,
	}, nil)
}

func TestSchedulerRetriesUntilDelivered(t *testing.T) {
	f := newFixture(t, delivery.RetryAll, 500, 200)
	ep := f.addEndpoint(t, event.AlarmCreated)
	evt := newTestEvent(event.AlarmCreated)

	res, err := f.dispatcher.Dispatch(context.Background(), delivery.Request{WebhookID: ep.ID, Event: evt})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != delivery.ResultRetryScheduled {
		t.Fatalf("expected retry_scheduled, got %q", res.Status)
	}

	s := newScheduler(f)
	n, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 claimed row, got %d", n)
	}

	rows := f.rows(t, ep)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Status != delivery.StatusFailed || rows[1].Status != delivery.StatusDelivered {
		t.Fatalf("unexpected chain %q → %q", rows[0].Status, rows[1].Status)
	}
	if rows[1].Attempt != 2 || rows[1].EventID != evt.ID {
		t.Fatalf("follow-up row %+v", rows[1])
	}
	if rows[0].NextAttemptAt != nil {
		t.Fatal("retry not cleared after the follow-up attempt")
	}

	calls := f.exec.Calls()
	if calls[0].payload != calls[1].payload {
		t.Fatal("retry sent a different body")
	}

	if n, _ := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("nothing should be due, claimed %d", n)
	}
}

func TestSchedulerDrivesChainToDeadLetter(t *testing.T) {
	f := newFixture(t, delivery.RetryAll, 500, 500, 500)
	ep := f.addEndpoint(t, event.AlarmCreated)

	if _, err := f.dispatcher.Dispatch(context.Background(), delivery.Request{WebhookID: ep.ID, Event: newTestEvent(event.AlarmCreated)}); err != nil {
		t.Fatal(err)
	}

	s := newScheduler(f)
	for range 2 {
		if _, err := s.RunOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	rows := f.rows(t, ep)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[2].Status != delivery.StatusDeadLetter || rows[2].Attempt != 3 {
		t.Fatalf("unexpected final row %+v", rows[2])
	}
	if n, _ := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("dead-lettered chain must not be retried, claimed %d", n)
	}
}

func TestSchedulerStopsChainForDeletedEndpoint(t *testing.T) {
	f := newFixture(t, delivery.RetryAll, 500)
	ep := f.addEndpoint(t, event.AlarmCreated)

	if _, err := f.dispatcher.Dispatch(context.Background(), delivery.Request{WebhookID: ep.ID, Event: newTestEvent(event.AlarmCreated)}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.DeleteEndpoint(context.Background(), ep.ID); err != nil {
		t.Fatal(err)
	}

	s := newScheduler(f)
	if n, _ := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected the due row to be claimed, got %d", n)
	}

	rows := f.rows(t, ep)
	if len(rows) != 1 {
		t.Fatalf("expected no follow-up row, got %d rows", len(rows))
	}
	if rows[0].NextAttemptAt != nil {
		t.Fatal("stopped chain must clear its retry")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	f := newFixture(t, delivery.RetryAll, 500, 200)
	ep := f.addEndpoint(t, event.AlarmCreated)

	if _, err := f.dispatcher.Dispatch(context.Background(), delivery.Request{WebhookID: ep.ID, Event: newTestEvent(event.AlarmCreated)}); err != nil {
		t.Fatal(err)
	}

	s := delivery.NewScheduler(f.store, f.dispatcher, delivery.SchedulerConfig{PollInterval: 10 * time.Millisecond}, nil)
	s.Start(context.Background())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(f.exec.Calls()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if len(f.exec.Calls()) != 2 {
		t.Fatalf("expected the poll loop to run the retry, got %d calls", len(f.exec.Calls()))
	}
}

func TestSchedulerKeepsLeaseWhileAttemptRuns(t *testing.T) {
	f := newFixture(t, delivery.RetryAll, 500, 200)
	ep := f.addEndpoint(t, event.AlarmCreated)

	if _, err := f.dispatcher.Dispatch(context.Background(), delivery.Request{WebhookID: ep.ID, Event: newTestEvent(event.AlarmCreated)}); err != nil {
		t.Fatal(err)
	}

	// The follow-up attempt takes longer than the lease.
	slow := delivery.ExecutorFunc(func(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, payload []byte, attempt int) (delivery.Response, error) {
		time.Sleep(200 * time.Millisecond)
		return f.exec.Deliver(ctx, ep, evt, payload, attempt)
	})
	dispatcher := delivery.NewDispatcher(delivery.DispatcherConfig{
		Endpoints: f.store,
		Ledger:    f.ledger,
		Executor:  slow,
		Retrier:   delivery.NewRetrier(delivery.RetryAll, backoff.Fixed(0)),
	}, nil)
	cfg := delivery.SchedulerConfig{BatchSize: 10, Concurrency: 2, ClaimLease: 60 * time.Millisecond}
	first := delivery.NewScheduler(f.store, dispatcher, cfg, nil)
	second := delivery.NewScheduler(f.store, dispatcher, cfg, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if n, err := first.RunOnce(context.Background()); err != nil || n != 1 {
			t.Errorf("first poller claimed %d (err %v), want 1", n, err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	n, err := second.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second poller claimed %d rows while the attempt was running", n)
	}
	wg.Wait()

	rows := f.rows(t, ep)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1].Attempt != 2 || rows[1].Status != delivery.StatusDelivered {
		t.Fatalf("unexpected follow-up row %+v", rows[1])
	}
	if rows[0].NextAttemptAt != nil {
		t.Fatal("retry not cleared after the follow-up attempt")
	}
	if calls := f.exec.Calls(); len(calls) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(calls))
	}
}

func TestRenewRetryIgnoresClearedRow(t *testing.T) {
	f := newFixture(t, delivery.RetryAll, 500)
	ep := f.addEndpoint(t, event.AlarmCreated)

	res, err := f.dispatcher.Dispatch(context.Background(), delivery.Request{WebhookID: ep.ID, Event: newTestEvent(event.AlarmCreated)})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := f.store.ClearRetry(ctx, res.DeliveryID); err != nil {
		t.Fatal(err)
	}
	if err := f.store.RenewRetry(ctx, res.DeliveryID, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	d, err := f.ledger.Get(ctx, res.DeliveryID)
	if err != nil {
		t.Fatal(err)
	}
	if d.NextAttemptAt != nil {
		t.Fatal("renew must not requeue a cleared row")
	}
}

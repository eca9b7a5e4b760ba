package dlq_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/store/memory"
)

func ctx() context.Context { return context.Background() }

type harness struct {
	store      *memory.Store
	svc        *dlq.Service
	dispatcher *delivery.Dispatcher
	healthy    atomic.Bool
	sent       atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: memory.New()}
	ledger := delivery.NewLedger(h.store, nil, nil)
	h.dispatcher = delivery.NewDispatcher(delivery.DispatcherConfig{
		Endpoints: h.store,
		Ledger:    ledger,
		Retrier:   delivery.NewRetrier(delivery.RetryAll, backoff.Fixed(0)),
		Executor: delivery.ExecutorFunc(func(context.Context, *endpoint.Endpoint, *event.Event, []byte, int) (delivery.Response, error) {
			h.sent.Add(1)
			if h.healthy.Load() {
				return delivery.Response{StatusCode: 200}, nil
			}
			return delivery.Response{StatusCode: 500}, &delivery.StatusError{StatusCode: 500}
		}),
	}, nil)
	h.svc = dlq.NewService(ledger, h.dispatcher, nil)
	return h
}

func (h *harness) endpoint(t *testing.T, org string, retries int) *endpoint.Endpoint {
	t.Helper()
	ep := &endpoint.Endpoint{
		Entity:         entity.New(),
		ID:             id.NewWebhookID(),
		OrganizationID: org,
		URL:            "https://example.com/hook",
		Secret:         "whsec_test",
		Events:         []string{event.Wildcard},
		Enabled:        true,
		RetryCount:     retries,
		TimeoutSeconds: 5,
	}
	if err := h.store.CreateEndpoint(ctx(), ep); err != nil {
		t.Fatal(err)
	}
	return ep
}

// deadLetter runs a chain to exhaustion and returns its final row id.
func (h *harness) deadLetter(t *testing.T, ep *endpoint.Endpoint, evt *event.Event) id.ID {
	t.Helper()
	var last *delivery.Result
	for attempt := 1; attempt <= ep.RetryCount; attempt++ {
		res, err := h.dispatcher.Dispatch(ctx(), delivery.Request{WebhookID: ep.ID, Event: evt, Attempt: attempt})
		if err != nil {
			t.Fatal(err)
		}
		last = res
	}
	if last.Status != delivery.ResultDeadLetter {
		t.Fatalf("chain ended %q", last.Status)
	}
	return last.DeliveryID
}

func testEvent() *event.Event {
	return &event.Event{
		ID:      "evt_replay_1",
		Type:    event.DeviceCreated,
		Created: time.Now().UTC(),
		Data:    json.RawMessage(`{"device_id":"d-1"}`),
	}
}

func TestList(t *testing.T) {
	h := newHarness(t)
	a := h.endpoint(t, "org-1", 2)
	b := h.endpoint(t, "org-1", 1)
	c := h.endpoint(t, "org-2", 1)

	h.deadLetter(t, a, testEvent())
	h.deadLetter(t, b, testEvent())
	h.deadLetter(t, c, testEvent())

	rows, err := h.svc.List(ctx(), "org-1", dlq.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 dead letters for org-1, got %d", len(rows))
	}
	for _, d := range rows {
		if d.Status != delivery.StatusDeadLetter {
			t.Fatalf("listed a %q row", d.Status)
		}
	}

	only, _ := h.svc.List(ctx(), "org-1", dlq.ListOpts{WebhookID: a.ID})
	if len(only) != 1 || only[0].Attempt != 2 {
		t.Fatalf("unexpected webhook filter result %v", only)
	}
}

func TestReplayStartsNewChain(t *testing.T) {
	h := newHarness(t)
	ep := h.endpoint(t, "org-1", 2)
	evt := testEvent()
	dead := h.deadLetter(t, ep, evt)

	h.healthy.Store(true)
	res, err := h.svc.Replay(ctx(), "org-1", dead)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != delivery.ResultDelivered {
		t.Fatalf("expected delivered, got %q", res.Status)
	}
	if res.DeliveryID.String() == dead.String() {
		t.Fatal("replay must write a new row")
	}

	row, err := h.store.GetDelivery(ctx(), res.DeliveryID)
	if err != nil {
		t.Fatal(err)
	}
	if row.Attempt != 1 || row.MaxAttempts != 2 || row.EventID != evt.ID {
		t.Fatalf("unexpected replay row %+v", row)
	}

	old, _ := h.store.GetDelivery(ctx(), dead)
	if old.Status != delivery.StatusDeadLetter {
		t.Fatal("original row must stay dead_letter")
	}
}

func TestReplayRejectsLiveRows(t *testing.T) {
	h := newHarness(t)
	ep := h.endpoint(t, "org-1", 3)

	res, err := h.dispatcher.Dispatch(ctx(), delivery.Request{WebhookID: ep.ID, Event: testEvent()})
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.svc.Replay(ctx(), "org-1", res.DeliveryID)
	if !errors.Is(err, herald.ErrNotDeadLettered) {
		t.Fatalf("expected ErrNotDeadLettered, got %v", err)
	}
}

func TestReplayOtherOrganization(t *testing.T) {
	h := newHarness(t)
	ep := h.endpoint(t, "org-1", 1)
	dead := h.deadLetter(t, ep, testEvent())
	sent := h.sent.Load()

	_, err := h.svc.Replay(ctx(), "org-2", dead)
	if !errors.Is(err, herald.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
	if h.sent.Load() != sent {
		t.Fatal("cross-organization replay must not send")
	}
}

func TestReplayUnknown(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Replay(ctx(), "org-1", id.NewDeliveryID()); !errors.Is(err, herald.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestReplayDeletedEndpoint(t *testing.T) {
	h := newHarness(t)
	ep := h.endpoint(t, "org-1", 1)
	dead := h.deadLetter(t, ep, testEvent())
	_ = h.store.DeleteEndpoint(ctx(), ep.ID)

	if _, err := h.svc.Replay(ctx(), "org-1", dead); !errors.Is(err, herald.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}

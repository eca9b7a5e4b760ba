// Package herald delivers platform events to the webhook endpoints that
// organizations register.
//
// Herald is a library. Import it into the service that produces events to
// get organization-scoped endpoints, HMAC-signed deliveries, durable
// retries with exponential backoff, a per-attempt delivery ledger and
// dead-letter replay. cmd/heraldd wraps it in a standalone HTTP service.
//
// Key features:
//   - Endpoint registry with exact or "*" subscriptions
//   - Composable store pattern (Memory, Postgres, SQLite, MongoDB, Redis)
//   - "sha256=" HMAC-SHA256 signatures over "{timestamp}.{body}"
//   - Retries persisted in the ledger and picked up by a leased poller
//   - JSON Schema validation of event payloads
//   - Prometheus metrics and OpenTelemetry spans
//
// Quick start:
//
//	h, err := herald.New(
//	    herald.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h.Start(ctx)
//	defer h.Stop(ctx)
//
//	evt, _ := event.New("", event.AlarmData{
//	    Kind:     event.AlarmTriggered,
//	    AlarmID:  "alm_1",
//	    DeviceID: "dev_1",
//	})
//	n, err := h.Broadcast(ctx, "org_123", evt)
package herald

package endpoint_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/herald"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/store/memory"
)

func ctx() context.Context { return context.Background() }

func ptr[T any](v T) *T { return &v }

func newService() *endpoint.Service {
	s := memory.New()
	return endpoint.NewService(s, endpoint.Config{}, nil)
}

func mustCreate(t *testing.T, svc *endpoint.Service, org string, in endpoint.CreateInput) *endpoint.Endpoint {
	t.Helper()
	ep, err := svc.Create(ctx(), org, in)
	if err != nil {
		t.Fatal(err)
	}
	return ep
}

func TestEndpointServiceCreateDefaults(t *testing.T) {
	svc := newService()

	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{
		URL:    "https://example.com/hook",
		Events: []string{"order.shipped"},
	})

	if !strings.HasPrefix(ep.ID.String(), "wh_") {
		t.Fatalf("unexpected id %q", ep.ID)
	}
	if !strings.HasPrefix(ep.Secret, "whsec_") {
		t.Fatalf("expected auto-generated secret, got %q", ep.Secret)
	}
	if !ep.Enabled {
		t.Error("expected enabled by default")
	}
	if ep.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", ep.RetryCount)
	}
	if ep.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want 30", ep.TimeoutSeconds)
	}
	if ep.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %q", ep.OrganizationID)
	}
}

func TestEndpointServiceCreateExplicitValues(t *testing.T) {
	svc := newService()

	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{
		URL:            "http://receiver.internal:8080/hooks",
		Events:         []string{"alarm.created", "alarm.created", "*"},
		Secret:         "whsec_mine",
		Enabled:        ptr(false),
		RetryCount:     ptr(5),
		TimeoutSeconds: ptr(10),
	})

	if ep.Secret != "whsec_mine" {
		t.Errorf("Secret = %q", ep.Secret)
	}
	if ep.Enabled {
		t.Error("explicit enabled=false ignored")
	}
	if ep.RetryCount != 5 || ep.TimeoutSeconds != 10 {
		t.Errorf("got retry=%d timeout=%d", ep.RetryCount, ep.TimeoutSeconds)
	}
	if len(ep.Events) != 2 {
		t.Errorf("duplicate events not collapsed: %v", ep.Events)
	}
}

func TestEndpointServiceConfiguredDefaults(t *testing.T) {
	svc := endpoint.NewService(memory.New(), endpoint.Config{DefaultRetryCount: 7, DefaultTimeoutSeconds: 12}, nil)

	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}})
	if ep.RetryCount != 7 || ep.TimeoutSeconds != 12 {
		t.Fatalf("got retry=%d timeout=%d", ep.RetryCount, ep.TimeoutSeconds)
	}
}

func TestEndpointServiceCreateValidation(t *testing.T) {
	svc := newService()

	tests := []struct {
		name  string
		org   string
		in    endpoint.CreateInput
		field string
	}{
		{"missing org", "", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}}, "organization_id"},
		{"missing url", "o", endpoint.CreateInput{Events: []string{"*"}}, "url"},
		{"relative url", "o", endpoint.CreateInput{URL: "/hook", Events: []string{"*"}}, "url"},
		{"ftp url", "o", endpoint.CreateInput{URL: "ftp://example.com/x", Events: []string{"*"}}, "url"},
		{"no events", "o", endpoint.CreateInput{URL: "https://example.com"}, "events"},
		{"blank event", "o", endpoint.CreateInput{URL: "https://example.com", Events: []string{""}}, "events"},
		{"zero retries", "o", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}, RetryCount: ptr(0)}, "retry_count"},
		{"negative timeout", "o", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}, TimeoutSeconds: ptr(-1)}, "timeout_seconds"},
		{"reserved header", "o", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}, Headers: map[string]string{"x-webhook-signature": "x"}}, "headers"},
		{"negative rate", "o", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}, RateLimit: -2}, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx(), tt.org, tt.in)
			var verr *endpoint.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestEndpointServiceCRUD(t *testing.T) {
	svc := newService()

	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{
		URL:         "https://example.com/webhook",
		Events:      []string{"*"},
		Description: "primary",
		Headers:     map[string]string{"X-Tenant": "acme"},
	})

	got, err := svc.Get(ctx(), "org-1", ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://example.com/webhook" {
		t.Fatalf("got URL %q", got.URL)
	}

	updated, err := svc.Update(ctx(), "org-1", ep.ID, endpoint.UpdateInput{
		Description: ptr("Updated description"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != "Updated description" {
		t.Fatalf("expected updated description, got %q", updated.Description)
	}
	if updated.URL != ep.URL || updated.RetryCount != 3 || updated.Headers["X-Tenant"] != "acme" {
		t.Fatalf("partial update touched other fields: %+v", updated)
	}

	if err := svc.Delete(ctx(), "org-1", ep.ID); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Get(ctx(), "org-1", ep.ID)
	if !errors.Is(err, herald.ErrWebhookNotFound) {
		t.Fatalf("expected deleted, got %v", err)
	}
}

func TestEndpointServiceUpdateRevalidates(t *testing.T) {
	svc := newService()
	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}})

	if _, err := svc.Update(ctx(), "org-1", ep.ID, endpoint.UpdateInput{URL: ptr("not a url")}); err == nil {
		t.Fatal("expected url validation error")
	}
	if _, err := svc.Update(ctx(), "org-1", ep.ID, endpoint.UpdateInput{Events: []string{}}); err == nil {
		t.Fatal("expected events validation error")
	}

	got, _ := svc.Get(ctx(), "org-1", ep.ID)
	if got.URL != "https://example.com" || len(got.Events) != 1 {
		t.Fatalf("failed update was persisted: %+v", got)
	}

	updated, err := svc.Update(ctx(), "org-1", ep.ID, endpoint.UpdateInput{
		URL:     ptr("https://example.org/new"),
		Enabled: ptr(false),
		Headers: map[string]string{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.URL != "https://example.org/new" || updated.Enabled {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestEndpointServiceOrganizationScope(t *testing.T) {
	svc := newService()
	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://example.com", Events: []string{"*"}})

	if _, err := svc.Get(ctx(), "org-2", ep.ID); !errors.Is(err, herald.ErrWebhookNotFound) {
		t.Fatalf("cross-org Get: %v", err)
	}
	if _, err := svc.Update(ctx(), "org-2", ep.ID, endpoint.UpdateInput{Description: ptr("x")}); !errors.Is(err, herald.ErrWebhookNotFound) {
		t.Fatalf("cross-org Update: %v", err)
	}
	if err := svc.Delete(ctx(), "org-2", ep.ID); !errors.Is(err, herald.ErrWebhookNotFound) {
		t.Fatalf("cross-org Delete: %v", err)
	}
	if _, err := svc.Get(ctx(), "org-1", ep.ID); err != nil {
		t.Fatalf("endpoint should survive cross-org delete: %v", err)
	}
}

func TestEndpointServiceList(t *testing.T) {
	svc := newService()

	for range 3 {
		mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://example.com/webhook", Events: []string{"*"}})
	}
	mustCreate(t, svc, "org-2", endpoint.CreateInput{URL: "https://example.com/webhook", Events: []string{"*"}})

	list, err := svc.List(ctx(), "org-1", endpoint.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}

	page, err := svc.List(ctx(), "org-1", endpoint.ListOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 with limit, got %d", len(page))
	}
}

func TestEndpointServiceResolve(t *testing.T) {
	svc := newService()

	mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://a.example.com", Events: []string{"alarm.created"}})
	all := mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://b.example.com", Events: []string{"*"}})
	mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://c.example.com", Events: []string{"alarm.created"}, Enabled: ptr(false)})
	mustCreate(t, svc, "org-2", endpoint.CreateInput{URL: "https://d.example.com", Events: []string{"*"}})

	got, err := svc.Resolve(ctx(), "org-1", "alarm.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(got))
	}

	got, err = svc.Resolve(ctx(), "org-1", "device.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != all.ID.String() {
		t.Fatalf("expected only the wildcard endpoint, got %v", got)
	}
}

func TestEndpointSubscribes(t *testing.T) {
	ep := &endpoint.Endpoint{Events: []string{"alarm.created"}}
	if !ep.Subscribes("alarm.created") {
		t.Error("exact match failed")
	}
	if ep.Subscribes("device.created") {
		t.Error("unexpected match")
	}
	if ep.Subscribes("alarm.*") {
		t.Error("patterns are literal")
	}
	if !ep.Subscribes("webhook.test") {
		t.Error("test events reach every endpoint")
	}

	wild := &endpoint.Endpoint{Events: []string{"*"}}
	if !wild.Subscribes("anything.at_all") {
		t.Error("wildcard should match every type")
	}
}

func TestEndpointServiceSetEnabled(t *testing.T) {
	svc := newService()
	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://example.com/webhook", Events: []string{"*"}})

	if err := svc.SetEnabled(ctx(), "org-1", ep.ID, false); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx(), "org-1", ep.ID)
	if got.Enabled {
		t.Fatal("expected disabled")
	}
}

func TestEndpointServiceRotateSecret(t *testing.T) {
	svc := newService()
	ep := mustCreate(t, svc, "org-1", endpoint.CreateInput{URL: "https://example.com/webhook", Events: []string{"*"}})

	oldSecret := ep.Secret
	newSecret, err := svc.RotateSecret(ctx(), "org-1", ep.ID)
	if err != nil {
		t.Fatal(err)
	}

	if newSecret == oldSecret {
		t.Fatal("expected different secret after rotation")
	}
	if !strings.HasPrefix(newSecret, "whsec_") {
		t.Fatalf("expected whsec_ prefix, got %q", newSecret)
	}

	got, _ := svc.Get(ctx(), "org-1", ep.ID)
	if got.Secret != newSecret {
		t.Fatal("secret not persisted after rotation")
	}
}

func TestEndpointServiceRotateSecretNotFound(t *testing.T) {
	svc := newService()

	_, err := svc.RotateSecret(ctx(), "org-1", id.NewWebhookID())
	if !errors.Is(err, herald.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}

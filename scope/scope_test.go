package scope_test

import (
	"context"
	"testing"

	"github.com/xraph/herald/scope"
)

func TestOrganizationRoundTrip(t *testing.T) {
	ctx := scope.WithOrganization(context.Background(), "org-7")

	got, ok := scope.Organization(ctx)
	if !ok || got != "org-7" {
		t.Fatalf("Organization() = %q, %v", got, ok)
	}
}

func TestOrganizationMissing(t *testing.T) {
	if _, ok := scope.Organization(context.Background()); ok {
		t.Fatal("expected no organization")
	}
	ctx := scope.WithOrganization(context.Background(), "")
	if _, ok := scope.Organization(ctx); ok {
		t.Fatal("empty organization should not be stored")
	}
}

func TestCapture(t *testing.T) {
	src := scope.WithOrganization(context.Background(), "org-1")
	if got := scope.Capture(src); got != "org-1" {
		t.Fatalf("Capture() = %q", got)
	}
	if got := scope.Capture(context.Background()); got != "" {
		t.Fatalf("Capture() on empty ctx = %q", got)
	}
}

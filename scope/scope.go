// Package scope carries the caller's organization through a context.
//
// The management API resolves the organization from the upstream auth layer
// and stores it here; services read it back when a call is not given an
// explicit organization id.
package scope

import "context"

type orgKey struct{}

// WithOrganization returns a copy of ctx carrying orgID.
// An empty orgID returns ctx unchanged.
func WithOrganization(ctx context.Context, orgID string) context.Context {
	if orgID == "" {
		return ctx
	}
	return context.WithValue(ctx, orgKey{}, orgID)
}

// Organization returns the organization stored in ctx.
func Organization(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgKey{}).(string)
	return orgID, ok && orgID != ""
}

// Capture returns the organization stored in ctx, or "".
func Capture(ctx context.Context) string {
	orgID, _ := Organization(ctx)
	return orgID
}

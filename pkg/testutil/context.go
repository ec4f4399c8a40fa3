package testutil

import (
	"context"
	"net/http"

	"talentflow/pkg/domain"
	"talentflow/pkg/requestcontext"
)

// WithPrincipal adds the authenticated principal to the request context,
// as the auth middleware would.
func WithPrincipal(req *http.Request, org, user string, role domain.Role, name string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), domain.OrganizationID(org), domain.UserID(user), role, name)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), key, value))
}

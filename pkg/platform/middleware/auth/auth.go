package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/httputil"
	"talentflow/pkg/requestcontext"
)

// Principal is the authenticated caller.
type Principal struct {
	OrganizationID domain.OrganizationID
	UserID         domain.UserID
	Role           domain.Role
	Name           string
	TokenID        string
}

// Authenticator validates a raw bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// BearerToken extracts the token from the Authorization header. When
// allowQuery is set, the access_token query parameter is accepted as a
// fallback for clients that cannot set headers on a WebSocket upgrade.
func BearerToken(r *http.Request, allowQuery bool) string {
	const bearerPrefix = "Bearer "
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix); ok {
		return strings.TrimSpace(after)
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// WithPrincipal stores the principal in ctx through requestcontext.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = requestcontext.WithPrincipal(ctx, p.OrganizationID, p.UserID, p.Role, p.Name)
	return requestcontext.WithTokenID(ctx, p.TokenID)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := BearerToken(r, false)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			principal, err := authn.Authenticate(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

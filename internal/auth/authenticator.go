package auth

import (
	"context"
	"log/slog"

	jwttoken "talentflow/internal/jwt_token"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	authmw "talentflow/pkg/platform/middleware/auth"
)

// TokenValidator verifies signature, expiry, issuer and audience.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RevocationChecker reports revoked jtis.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Authenticator turns a raw bearer token into a principal. It is shared by
// the REST middleware and the realtime handshake.
type Authenticator struct {
	validator  TokenValidator
	revocation RevocationChecker
	logger     *slog.Logger
}

// NewAuthenticator wires a validator and an optional revocation list.
func NewAuthenticator(validator TokenValidator, revocation RevocationChecker, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{validator: validator, revocation: revocation, logger: logger}
}

// Authenticate validates the token and consults the revocation list.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*authmw.Principal, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	if a.revocation != nil {
		revoked, err := a.revocation.IsRevoked(ctx, claims.ID)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to check token revocation", "error", err)
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to validate token")
		}
		if revoked {
			a.logger.WarnContext(ctx, "token revoked", "jti", claims.ID)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
		}
	}

	org, err := domain.ParseOrganizationID(claims.OrganizationID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token organization is invalid")
	}
	user, err := domain.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token subject is invalid")
	}
	role, _ := domain.ParseRole(claims.Role)

	return &authmw.Principal{
		OrganizationID: org,
		UserID:         user,
		Role:           role,
		Name:           claims.Name,
		TokenID:        claims.ID,
	}, nil
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/internal/auth/revocation"
	jwttoken "talentflow/internal/jwt_token"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

type failingRevocation struct{}

func (failingRevocation) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()
	jwts := jwttoken.NewJWTService("key", "issuer", "aud")
	trl := revocation.NewInMemoryTRL(nil)
	authn := NewAuthenticator(jwts, trl, nil)

	token, err := jwts.GenerateAccessToken(jwttoken.Subject{
		UserID: "mgr-7", OrganizationID: "acme", Role: domain.RoleManager, Name: "Maya",
	}, time.Hour)
	require.NoError(t, err)

	t.Run("valid token yields principal", func(t *testing.T) {
		p, err := authn.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, domain.OrganizationID("acme"), p.OrganizationID)
		assert.Equal(t, domain.UserID("mgr-7"), p.UserID)
		assert.Equal(t, domain.RoleManager, p.Role)
		assert.Equal(t, "Maya", p.Name)
		assert.NotEmpty(t, p.TokenID)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := authn.Authenticate(ctx, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("revoked token", func(t *testing.T) {
		p, err := authn.Authenticate(ctx, token)
		require.NoError(t, err)
		require.NoError(t, trl.RevokeToken(ctx, p.TokenID, time.Hour))

		_, err = authn.Authenticate(ctx, token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("revocation list unavailable", func(t *testing.T) {
		broken := NewAuthenticator(jwts, failingRevocation{}, nil)
		_, err := broken.Authenticate(ctx, token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

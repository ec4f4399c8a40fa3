package service

import (
	"context"

	"talentflow/internal/candidate/models"
	"talentflow/pkg/domain"
)

// Actor is the authenticated user asking for a change.
type Actor struct {
	ID   domain.UserID
	Name string
	Role domain.Role
}

// Authorizer is the capability check consulted before any write. The
// permission model belongs to the identity side; the engine only asks.
type Authorizer interface {
	CanTransition(ctx context.Context, actor Actor, candidate *models.Candidate, to models.State) bool
	CanView(ctx context.Context, actor Actor, candidate *models.Candidate) bool
}

// RolePolicy is the default Authorizer:
//   - ADMIN and RH may apply any edge
//   - MANAGER only on candidates assigned to them
//   - CANDIDATE only withdraws their own application
type RolePolicy struct{}

func (RolePolicy) CanTransition(_ context.Context, actor Actor, c *models.Candidate, to models.State) bool {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleRH:
		return true
	case domain.RoleManager:
		return !c.AssignedManagerID.IsZero() && c.AssignedManagerID == actor.ID
	case domain.RoleCandidate:
		return to == models.StateWithdrawn && !c.PortalUserID.IsZero() && c.PortalUserID == actor.ID
	default:
		return false
	}
}

func (RolePolicy) CanView(_ context.Context, actor Actor, c *models.Candidate) bool {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleRH, domain.RoleManager:
		return true
	case domain.RoleCandidate:
		return !c.PortalUserID.IsZero() && c.PortalUserID == actor.ID
	default:
		return false
	}
}

// Package directory answers which members of an organization hold a role.
// Membership itself is owned by the identity side; this is a read replica
// fed by seeding or sync.
package directory

import (
	"context"
	"sort"
	"sync"

	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

type Member struct {
	OrganizationID domain.OrganizationID
	UserID         domain.UserID
	DisplayName    string
	Role           domain.Role
}

func (m Member) Validate() error {
	if m.OrganizationID.IsZero() || m.UserID.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "member requires organization and user")
	}
	if _, ok := domain.ParseRole(m.Role.String()); !ok {
		return dErrors.New(dErrors.CodeInvariantViolation, "member role is unknown")
	}
	return nil
}

type InMemoryDirectory struct {
	mu      sync.RWMutex
	members map[domain.OrganizationID]map[domain.UserID]Member
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{members: make(map[domain.OrganizationID]map[domain.UserID]Member)}
}

// Upsert adds the member or replaces its role and display name.
func (d *InMemoryDirectory) Upsert(_ context.Context, m Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	org, ok := d.members[m.OrganizationID]
	if !ok {
		org = make(map[domain.UserID]Member)
		d.members[m.OrganizationID] = org
	}
	org[m.UserID] = m
	return nil
}

// MembersWithRoles returns member ids sorted for stable fan-out order.
func (d *InMemoryDirectory) MembersWithRoles(_ context.Context, org domain.OrganizationID, roles []domain.Role) ([]domain.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.UserID
	for id, m := range d.members[org] {
		if m.Role.In(roles) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

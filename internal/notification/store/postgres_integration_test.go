//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/internal/events"
	"talentflow/internal/notification/models"
	"talentflow/internal/platform/postgres"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
	"talentflow/pkg/testutil/containers"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pg.DB))
	require.NoError(t, pg.Truncate(ctx, "notification_receipts", "notifications"))
	return NewPostgresStore(pg.DB)
}

func TestPostgresStore_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	evt := stateChanged(t)

	n1 := notification(t, evt, models.Draft{Recipient: "u1", Title: "t", Metadata: map[string]string{"newState": "PRESCREENED"}}, t0)
	inserted, err := s.InsertBatch(ctx, []*models.Notification{n1})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	dup := notification(t, evt, models.Draft{Recipient: "u1", Title: "t"}, t0)
	inserted, err = s.InsertBatch(ctx, []*models.Notification{dup})
	require.NoError(t, err)
	assert.Empty(t, inserted)

	list, err := s.List(ctx, models.Viewer{OrganizationID: "acme", UserID: "u1", Role: domain.RoleManager}, models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, n1.ID, list[0].ID)
	assert.Equal(t, "PRESCREENED", list[0].Metadata["newState"])
	assert.Equal(t, domain.CandidateID("42"), list[0].CandidateID)
}

func TestPostgresStore_BroadcastReceipts(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	offer, err := events.New(events.TypeJobOfferCreated, "acme", events.SubjectIDs{JobOfferID: "jo-1"},
		events.JobOfferCreated{Title: "Go engineer"}, t0)
	require.NoError(t, err)
	b := notification(t, offer, models.Draft{AudienceRoles: []domain.Role{domain.RoleRH, domain.RoleAdmin}, Title: "offer"}, t0)
	_, err = s.InsertBatch(ctx, []*models.Notification{b})
	require.NoError(t, err)

	rh1 := models.Viewer{OrganizationID: "acme", UserID: "rh-1", Role: domain.RoleRH}
	rh2 := models.Viewer{OrganizationID: "acme", UserID: "rh-2", Role: domain.RoleRH}

	require.NoError(t, s.MarkRead(ctx, rh1, b.ID, time.Now()))
	require.NoError(t, s.MarkRead(ctx, rh1, b.ID, time.Now()))

	unread, err := s.List(ctx, rh1, models.ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)

	unread, err = s.List(ctx, rh2, models.ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	n, err := s.MarkAllRead(ctx, rh2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = s.MarkRead(ctx, models.Viewer{OrganizationID: "acme", UserID: "m", Role: domain.RoleManager}, b.ID, time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"talentflow/internal/candidate/models"
	"talentflow/internal/candidate/service"
	"talentflow/internal/candidate/store"
	"talentflow/internal/eventbus/outbox"
	"talentflow/internal/events"
	"talentflow/internal/platform/postgres"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/sentinel"
	txcontext "talentflow/pkg/platform/tx"
	"talentflow/pkg/testutil/containers"
)

type pgTx struct {
	pg     *containers.PostgresContainer
	stores service.TxStores
}

func (t pgTx) RunInTx(ctx context.Context, fn func(context.Context, service.TxStores) error) error {
	return txcontext.Run(ctx, t.pg.DB, 5*time.Second, func(ctx context.Context) error {
		return fn(ctx, t.stores)
	})
}

type PostgresStoreSuite struct {
	suite.Suite
	pg      *containers.PostgresContainer
	store   *store.PostgresStore
	outbox  *outbox.PostgresStore
	service *service.Service
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.pg.DB))
	s.store = store.NewPostgresStore(s.pg.DB)
	s.outbox = outbox.NewPostgresStore(s.pg.DB)
	tx := pgTx{pg: s.pg, stores: service.TxStores{Candidates: s.store, History: s.store, Outbox: s.outbox}}
	s.service = service.New(tx, s.store, s.store)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "candidate_state_transitions", "candidates", "event_outbox"))
	c, err := models.NewCandidate("42", "acme", "Ada Lovelace", time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	c.AssignedManagerID = "mgr-1"
	s.Require().NoError(s.store.Create(context.Background(), c))
}

func (s *PostgresStoreSuite) pending() []events.Event {
	var got []events.Event
	_, err := s.outbox.ProcessBatch(context.Background(), 100, func(_ context.Context, evts []events.Event) error {
		got = append(got, evts...)
		return nil
	})
	s.Require().NoError(err)
	return got
}

func (s *PostgresStoreSuite) TestCreateDuplicate() {
	c, err := models.NewCandidate("42", "acme", "Ada", time.Now())
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(context.Background(), c), sentinel.ErrDuplicate)
}

func (s *PostgresStoreSuite) TestTenantScoping() {
	_, err := s.store.FindByID(context.Background(), "globex", "42")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTransitionCommitsAllThreeWrites() {
	ctx := context.Background()
	actor := service.Actor{ID: "7", Name: "Rita", Role: domain.RoleRH}

	updated, err := s.service.ApplyTransition(ctx, service.TransitionRequest{
		CandidateID: "42", OrganizationID: "acme", RequestedState: models.StatePrescreened, Actor: actor, Comment: "ok",
	})
	s.Require().NoError(err)
	s.Equal(int64(2), updated.Version)

	stored, err := s.store.FindByID(ctx, "acme", "42")
	s.Require().NoError(err)
	s.Equal(models.StatePrescreened, stored.State)

	history, err := s.store.ListByCandidate(ctx, "acme", "42")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal("ok", history[0].Comment)
	s.NoError(models.ValidateChain(stored, history))

	evts := s.pending()
	s.Require().Len(evts, 1)
	s.Equal(events.TypeCandidateStateChanged, evts[0].Type)
	s.Equal("acme/42", evts[0].PartitionKey())
	s.Empty(s.pending(), "published rows are marked")
}

func (s *PostgresStoreSuite) TestStaleVersionIsConflict() {
	ctx := context.Background()
	next := (&models.Candidate{ID: "42", OrganizationID: "acme", State: models.StateNew, Version: 1}).
		Advance(models.StateRejected, time.Now())
	s.Require().NoError(s.store.CompareAndSwap(ctx, next, 1))
	s.ErrorIs(s.store.CompareAndSwap(ctx, next, 1), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestConcurrentTransitions() {
	ctx := context.Background()
	actor := service.Actor{ID: "7", Role: domain.RoleRH}
	one := int64(1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []models.State{models.StatePrescreened, models.StateRejected} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.ApplyTransition(ctx, service.TransitionRequest{
				CandidateID: "42", OrganizationID: "acme", RequestedState: to, Actor: actor, ExpectedVersion: &one,
			})
		}()
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if dErrors.HasCode(err, dErrors.CodeConflict) {
			conflict++
		}
	}
	s.Equal(1, ok)
	s.Equal(1, conflict)

	history, err := s.store.ListByCandidate(ctx, "acme", "42")
	s.Require().NoError(err)
	s.Len(history, 1)
	s.Len(s.pending(), 1)
}

func TestRunRollsBackOnError(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pg.DB))
	require.NoError(t, pg.Truncate(ctx, "candidates"))

	st := store.NewPostgresStore(pg.DB)
	err := txcontext.Run(ctx, pg.DB, time.Second, func(ctx context.Context) error {
		c, err := models.NewCandidate("99", "acme", "Rolled Back", time.Now())
		require.NoError(t, err)
		require.NoError(t, st.Create(ctx, c))
		return sentinel.ErrUnavailable
	})
	require.ErrorIs(t, err, sentinel.ErrUnavailable)

	_, err = st.FindByID(ctx, "acme", "99")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

package service_test

//go:generate mockgen -source=authorizer.go -destination=mocks/mocks.go -package=mocks Authorizer

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"talentflow/internal/candidate/metrics"
	"talentflow/internal/candidate/models"
	"talentflow/internal/candidate/service"
	"talentflow/internal/candidate/service/mocks"
	"talentflow/internal/candidate/store"
	"talentflow/internal/eventbus/outbox"
	"talentflow/internal/events"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/requestcontext"
	"talentflow/pkg/testutil"
)

const org domain.OrganizationID = "acme"

var (
	rh      = service.Actor{ID: "7", Name: "Rita Harper", Role: domain.RoleRH}
	manager = service.Actor{ID: "mgr-1", Name: "Max", Role: domain.RoleManager}
	portal  = service.Actor{ID: "cand-user-42", Name: "Ada", Role: domain.RoleCandidate}
	t0      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	outbox  *outbox.InMemoryStore
	service *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.outbox = outbox.NewInMemoryStore()
	s.service = service.New(service.NewMemoryTx(s.store, s.outbox), s.store, s.store,
		service.WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	s.seed("42")
}

func (s *ServiceSuite) seed(id domain.CandidateID) {
	c, err := models.NewCandidate(id, org, "Ada Lovelace", t0)
	s.Require().NoError(err)
	c.AssignedManagerID = manager.ID
	c.PortalUserID = portal.ID
	s.Require().NoError(s.store.Create(context.Background(), c))
}

func (s *ServiceSuite) apply(id domain.CandidateID, to models.State, actor service.Actor, comment string) (*models.Candidate, error) {
	return s.service.ApplyTransition(context.Background(), service.TransitionRequest{
		CandidateID: id, OrganizationID: org, RequestedState: to, Actor: actor, Comment: comment,
	})
}

func (s *ServiceSuite) history(id domain.CandidateID) []*models.StateTransition {
	h, err := s.store.ListByCandidate(context.Background(), org, id)
	s.Require().NoError(err)
	return h
}

func (s *ServiceSuite) TestCandidate42Scenario() {
	t := s.T()

	testutil.Given(t, "candidate 42 at NEW", func(t *testing.T) {
		testutil.When(t, "actor 7 moves it to PRESCREENED with a comment", func(t *testing.T) {
			c, err := s.apply("42", models.StatePrescreened, rh, "ok")
			require.NoError(t, err)

			testutil.Then(t, "history holds exactly that transition", func(t *testing.T) {
				assert.Equal(t, models.StatePrescreened, c.State)
				assert.Equal(t, int64(2), c.Version)
				h := s.history("42")
				require.Len(t, h, 1)
				assert.Equal(t, models.StateNew, h[0].PreviousState)
				assert.Equal(t, models.StatePrescreened, h[0].NewState)
				assert.Equal(t, domain.UserID("7"), h[0].ChangedBy)
				assert.Equal(t, "ok", h[0].Comment)
			})
		})

		testutil.When(t, "actor 7 jumps to INTERVIEWING", func(t *testing.T) {
			_, err := s.apply("42", models.StateInterviewing, rh, "")

			testutil.Then(t, "the edge is rejected and nothing changes", func(t *testing.T) {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				assert.Len(t, s.history("42"), 1)
			})
		})

		testutil.When(t, "the candidate reaches ACCEPTED and actor 7 tries NEW", func(t *testing.T) {
			for _, st := range []models.State{models.StateInterviewScheduled, models.StateInterviewing, models.StateAccepted} {
				_, err := s.apply("42", st, rh, "")
				require.NoError(t, err)
			}
			_, err := s.apply("42", models.StateNew, rh, "")

			testutil.Then(t, "the terminal state rejects it", func(t *testing.T) {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				assert.Len(t, s.history("42"), 4)
				assert.Equal(t, 4, s.outbox.Pending(), "one event per successful transition")
			})
		})
	})
}

func (s *ServiceSuite) TestTerminalStatesRejectEveryTarget() {
	for i, terminal := range []models.State{models.StateAccepted, models.StateRejected, models.StateWithdrawn} {
		id := domain.CandidateID("t" + string(rune('0'+i)))
		s.seed(id)
		path := map[models.State][]models.State{
			models.StateAccepted:  {models.StatePrescreened, models.StateInterviewScheduled, models.StateInterviewing, models.StateAccepted},
			models.StateRejected:  {models.StateRejected},
			models.StateWithdrawn: {models.StateWithdrawn},
		}[terminal]
		for _, st := range path {
			_, err := s.apply(id, st, rh, "")
			s.Require().NoError(err)
		}
		before := s.outbox.Pending()
		for _, to := range models.AllStates() {
			_, err := s.apply(id, to, rh, "")
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "%s -> %s", terminal, to)
		}
		s.Equal(before, s.outbox.Pending(), "failed attempts emit no events")
	}
}

func (s *ServiceSuite) TestHistoryFormsUnbrokenChain() {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 25; i++ {
		id := domain.CandidateID("walk-" + string(rune('a'+i)))
		s.seed(id)
		for step := 0; step < 12; step++ {
			// Mix valid and invalid targets; failures must leave no trace.
			all := models.AllStates()
			_, _ = s.apply(id, all[rng.IntN(len(all))], rh, "")

			c, err := s.store.FindByID(context.Background(), org, id)
			s.Require().NoError(err)
			s.Require().NoError(models.ValidateChain(c, s.history(id)))
		}
	}
}

func (s *ServiceSuite) TestExpectedVersionMismatchIsConflict() {
	stale := int64(5)
	_, err := s.service.ApplyTransition(context.Background(), service.TransitionRequest{
		CandidateID: "42", OrganizationID: org, RequestedState: models.StatePrescreened, Actor: rh, ExpectedVersion: &stale,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Empty(s.history("42"))
}

func (s *ServiceSuite) TestOtherTenantIsNotFound() {
	_, err := s.service.ApplyTransition(context.Background(), service.TransitionRequest{
		CandidateID: "42", OrganizationID: "globex", RequestedState: models.StatePrescreened, Actor: rh,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestEventCarriesRoutingData() {
	ctx := requestcontext.WithTime(context.Background(), t0.Add(time.Hour))
	_, err := s.service.ApplyTransition(ctx, service.TransitionRequest{
		CandidateID: "42", OrganizationID: org, RequestedState: models.StatePrescreened, Actor: rh, Comment: "strong CV",
	})
	s.Require().NoError(err)

	var published []events.Event
	_, err = outbox.NewRelay(s.outbox, publisherFunc(func(_ context.Context, evts ...events.Event) error {
		published = append(published, evts...)
		return nil
	})).Flush(context.Background())
	s.Require().NoError(err)
	s.Require().Len(published, 1)

	evt := published[0]
	s.Equal(events.TypeCandidateStateChanged, evt.Type)
	s.Equal(domain.CandidateID("42"), evt.Subjects.CandidateID)
	s.Equal(t0.Add(time.Hour), evt.OccurredAt)

	payload, err := events.Decode[events.CandidateStateChanged](evt)
	s.Require().NoError(err)
	s.Equal("NEW", payload.PreviousState)
	s.Equal("PRESCREENED", payload.NewState)
	s.Equal(manager.ID, payload.AssignedManagerID)
	s.Equal(portal.ID, payload.PortalUserID)
	s.Equal(int64(2), payload.Version)
}

func (s *ServiceSuite) TestChangedAtStrictlyIncreases() {
	ctx := requestcontext.WithTime(context.Background(), t0.Add(time.Hour))
	for _, st := range []models.State{models.StatePrescreened, models.StateInterviewScheduled} {
		_, err := s.service.ApplyTransition(ctx, service.TransitionRequest{
			CandidateID: "42", OrganizationID: org, RequestedState: st, Actor: rh,
		})
		s.Require().NoError(err)
	}
	h := s.history("42")
	s.Require().Len(h, 2)
	s.True(h[1].ChangedAt.After(h[0].ChangedAt))
}

func (s *ServiceSuite) TestRolePolicy() {
	tests := []struct {
		name  string
		actor service.Actor
		to    models.State
		code  dErrors.Code
	}{
		{"assigned manager", manager, models.StatePrescreened, ""},
		{"other manager", service.Actor{ID: "mgr-2", Role: domain.RoleManager}, models.StatePrescreened, dErrors.CodeForbidden},
		{"candidate withdraws own application", portal, models.StateWithdrawn, ""},
		{"candidate cannot reject", portal, models.StateRejected, dErrors.CodeForbidden},
		{"someone else's application", service.Actor{ID: "cand-9", Role: domain.RoleCandidate}, models.StateWithdrawn, dErrors.CodeForbidden},
		{"unknown role", service.Actor{ID: "x", Role: "JANITOR"}, models.StatePrescreened, dErrors.CodeForbidden},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			_, err := s.apply("42", tt.to, tt.actor, "")
			if tt.code == "" {
				s.NoError(err)
				return
			}
			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
			s.Empty(s.history("42"))
		})
	}
}

func (s *ServiceSuite) TestHistoryAndGetCandidateVisibility() {
	_, err := s.apply("42", models.StatePrescreened, rh, "")
	s.Require().NoError(err)

	h, err := s.service.History(context.Background(), org, "42", portal)
	s.Require().NoError(err)
	s.Len(h, 1)

	_, err = s.service.History(context.Background(), org, "42", service.Actor{ID: "cand-9", Role: domain.RoleCandidate})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	c, err := s.service.GetCandidate(context.Background(), org, "42", manager)
	s.Require().NoError(err)
	s.ElementsMatch([]models.State{models.StateInterviewScheduled, models.StateRejected, models.StateWithdrawn},
		s.service.AllowedTransitions(context.Background(), c, manager))
	s.Equal([]models.State{models.StateWithdrawn}, s.service.AllowedTransitions(context.Background(), c, portal))
}

type publisherFunc func(ctx context.Context, evts ...events.Event) error

func (f publisherFunc) Publish(ctx context.Context, evts ...events.Event) error { return f(ctx, evts...) }

// barrierTx holds every caller at the transaction boundary until n of them
// have arrived, so all of them have loaded the same version.
type barrierTx struct {
	inner service.TxRunner
	wg    sync.WaitGroup
}

func newBarrierTx(inner service.TxRunner, n int) *barrierTx {
	b := &barrierTx{inner: inner}
	b.wg.Add(n)
	return b
}

func (b *barrierTx) RunInTx(ctx context.Context, fn func(context.Context, service.TxStores) error) error {
	b.wg.Done()
	b.wg.Wait()
	return b.inner.RunInTx(ctx, fn)
}

func TestConcurrentTransitionsOneWinsOneConflicts(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	ob := outbox.NewInMemoryStore()
	c, err := models.NewCandidate("42", org, "Ada", t0)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, c))

	svc := service.New(newBarrierTx(service.NewMemoryTx(st, ob), 2), st, st)

	targets := []models.State{models.StatePrescreened, models.StateRejected}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.ApplyTransition(ctx, service.TransitionRequest{
				CandidateID: "42", OrganizationID: org, RequestedState: to, Actor: rh,
			})
		}()
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case dErrors.HasCode(err, dErrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	history, err := st.ListByCandidate(ctx, org, "42")
	require.NoError(t, err)
	require.Len(t, history, 1, "never two rows from the same previous version")
	assert.Equal(t, 1, ob.Pending())

	final, err := st.FindByID(ctx, org, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	assert.NoError(t, models.ValidateChain(final, history))
}

// failingHistoryTx runs the real memory transaction but makes history
// appends fail, as an unreachable database would.
type failingHistoryTx struct {
	inner service.TxRunner
}

type failingHistory struct{ service.HistoryStore }

func (failingHistory) Append(context.Context, *models.StateTransition) error {
	return errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
}

func (f failingHistoryTx) RunInTx(ctx context.Context, fn func(context.Context, service.TxStores) error) error {
	return f.inner.RunInTx(ctx, func(ctx context.Context, stores service.TxStores) error {
		stores.History = failingHistory{stores.History}
		return fn(ctx, stores)
	})
}

func TestStorageFailureAbortsWholeTransition(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	ob := outbox.NewInMemoryStore()
	c, err := models.NewCandidate("42", org, "Ada", t0)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, c))

	svc := service.New(failingHistoryTx{service.NewMemoryTx(st, ob)}, st, st)
	_, err = svc.ApplyTransition(ctx, service.TransitionRequest{
		CandidateID: "42", OrganizationID: org, RequestedState: models.StatePrescreened, Actor: rh,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	got, err := st.FindByID(ctx, org, "42")
	require.NoError(t, err)
	assert.Equal(t, models.StateNew, got.State, "state write rolled back with history write")
	assert.Equal(t, int64(1), got.Version)
	assert.Zero(t, ob.Pending())
}

type unreachableOutbox struct{ calls int }

func (o *unreachableOutbox) EnqueueAll(context.Context, ...events.Event) error {
	o.calls++
	return errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
}

func TestOutboxFailureLeavesCandidateAndHistoryUntouched(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	c, err := models.NewCandidate("42", org, "Ada", t0)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, c))

	ob := &unreachableOutbox{}
	svc := service.New(service.NewMemoryTx(st, ob), st, st)
	_, err = svc.ApplyTransition(ctx, service.TransitionRequest{
		CandidateID: "42", OrganizationID: org, RequestedState: models.StatePrescreened, Actor: rh,
	})
	require.Error(t, err)
	assert.Equal(t, 1, ob.calls)

	got, err := st.FindByID(ctx, org, "42")
	require.NoError(t, err)
	assert.Equal(t, models.StateNew, got.State)
	assert.Equal(t, int64(1), got.Version)
	history, err := st.ListByCandidate(ctx, org, "42")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStaleVersionEnqueuesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	c, err := models.NewCandidate("42", org, "Ada", t0)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, c))

	ob := outbox.NewInMemoryStore()
	tx := service.NewMemoryTx(st, ob)
	err = tx.RunInTx(ctx, func(ctx context.Context, stores service.TxStores) error {
		cur, err := stores.Candidates.FindByID(ctx, org, "42")
		if err != nil {
			return err
		}
		next := *cur
		next.Version++
		if err := stores.Candidates.CompareAndSwap(ctx, &next, cur.Version); err != nil {
			return err
		}
		evt, err := events.New(events.TypeCandidateStateChanged, org, events.SubjectIDs{CandidateID: "42"},
			events.CandidateStateChanged{PreviousState: "NEW", NewState: "PRESCREENED"}, t0)
		if err != nil {
			return err
		}
		if err := stores.Outbox.Enqueue(ctx, evt); err != nil {
			return err
		}
		// Another writer commits first.
		bumped := *cur
		bumped.Version++
		return st.CompareAndSwap(ctx, &bumped, cur.Version)
	})
	require.Error(t, err)
	assert.Zero(t, ob.Pending())
}

// slowTx lets the caller's deadline pass while the transaction is open.
type slowTx struct {
	inner service.TxRunner
	delay time.Duration
}

func (s slowTx) RunInTx(ctx context.Context, fn func(context.Context, service.TxStores) error) error {
	return s.inner.RunInTx(ctx, func(ctx context.Context, stores service.TxStores) error {
		if err := fn(ctx, stores); err != nil {
			return err
		}
		time.Sleep(s.delay)
		return nil
	})
}

func TestDeadlineBeforeCommitAppliesNothing(t *testing.T) {
	st := store.NewInMemoryStore()
	ob := outbox.NewInMemoryStore()
	c, err := models.NewCandidate("42", org, "Ada", t0)
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), c))

	svc := service.New(slowTx{inner: service.NewMemoryTx(st, ob), delay: 50 * time.Millisecond}, st, st)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.ApplyTransition(ctx, service.TransitionRequest{
		CandidateID: "42", OrganizationID: org, RequestedState: models.StatePrescreened, Actor: rh,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))

	history, err := st.ListByCandidate(context.Background(), org, "42")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Zero(t, ob.Pending())
}

func TestAuthorizerConsultedOnlyForValidEdges(t *testing.T) {
	ctrl := gomock.NewController(t)
	authz := mocks.NewMockAuthorizer(ctrl)

	st := store.NewInMemoryStore()
	ob := outbox.NewInMemoryStore()
	c, err := models.NewCandidate("42", org, "Ada", t0)
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), c))
	svc := service.New(service.NewMemoryTx(st, ob), st, st, service.WithAuthorizer(authz))

	// An invalid edge never reaches the capability check.
	_, err = svc.ApplyTransition(context.Background(), service.TransitionRequest{
		CandidateID: "42", OrganizationID: org, RequestedState: models.StateAccepted, Actor: rh,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	authz.EXPECT().
		CanTransition(gomock.Any(), rh, gomock.Any(), models.StatePrescreened).
		Return(false)
	_, err = svc.ApplyTransition(context.Background(), service.TransitionRequest{
		CandidateID: "42", OrganizationID: org, RequestedState: models.StatePrescreened, Actor: rh,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Zero(t, ob.Pending())
}

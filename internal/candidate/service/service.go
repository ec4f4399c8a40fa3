// Package service implements the candidate state transition engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"talentflow/internal/candidate/metrics"
	"talentflow/internal/candidate/models"
	"talentflow/internal/events"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/sentinel"
	"talentflow/pkg/requestcontext"
)

type CandidateStore interface {
	FindByID(ctx context.Context, org domain.OrganizationID, id domain.CandidateID) (*models.Candidate, error)
	CompareAndSwap(ctx context.Context, next *models.Candidate, expectedVersion int64) error
}

type HistoryStore interface {
	Append(ctx context.Context, t *models.StateTransition) error
	ListByCandidate(ctx context.Context, org domain.OrganizationID, id domain.CandidateID) ([]*models.StateTransition, error)
}

type EventOutbox interface {
	Enqueue(ctx context.Context, evt events.Event) error
}

// TransitionRequest asks to move one candidate to RequestedState.
// ExpectedVersion, when set, must match the stored version.
type TransitionRequest struct {
	CandidateID     domain.CandidateID
	OrganizationID  domain.OrganizationID
	RequestedState  models.State
	Actor           Actor
	Comment         string
	ExpectedVersion *int64
}

// Service validates and applies candidate state changes. It is the only
// writer of candidate state and history.
type Service struct {
	tx         TxRunner
	candidates CandidateStore
	history    HistoryStore
	authorizer Authorizer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) {
		s.authorizer = a
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New builds the engine. Reads outside a transaction go to candidates and
// history; writes go through tx.
func New(tx TxRunner, candidates CandidateStore, history HistoryStore, opts ...Option) *Service {
	s := &Service{
		tx:         tx,
		candidates: candidates,
		history:    history,
		authorizer: RolePolicy{},
		logger:     slog.Default(),
		tracer:     otel.Tracer("talentflow/candidate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyTransition validates the edge and the actor, then in one transaction
// swaps the candidate version, appends history and enqueues exactly one
// CandidateStateChanged event. Conflicts are returned, never retried here.
func (s *Service) ApplyTransition(ctx context.Context, req TransitionRequest) (*models.Candidate, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "candidate.ApplyTransition", trace.WithAttributes(
		attribute.String("organization_id", req.OrganizationID.String()),
		attribute.String("candidate_id", req.CandidateID.String()),
		attribute.String("requested_state", req.RequestedState.String()),
	))
	defer span.End()

	updated, err := s.applyTransition(ctx, req)
	s.metrics.ObserveTransition(time.Since(start))
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.IncrementRejection(string(code))
		span.SetStatus(codes.Error, string(code))
		span.RecordError(err)
		s.logger.InfoContext(ctx, "candidate transition rejected",
			"organization_id", req.OrganizationID,
			"candidate_id", req.CandidateID,
			"requested_state", req.RequestedState,
			"actor_id", req.Actor.ID,
			"code", code,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("version", updated.Version))
	return updated, nil
}

func (s *Service) applyTransition(ctx context.Context, req TransitionRequest) (*models.Candidate, error) {
	current, err := s.candidates.FindByID(ctx, req.OrganizationID, req.CandidateID)
	if err != nil {
		return nil, translate(err, "load candidate")
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("candidate is at version %d, expected %d", current.Version, *req.ExpectedVersion))
	}
	if err := models.ValidateTransition(current.State, req.RequestedState); err != nil {
		return nil, err
	}
	if !s.authorizer.CanTransition(ctx, req.Actor, current, req.RequestedState) {
		return nil, dErrors.New(dErrors.CodeForbidden,
			fmt.Sprintf("role %s may not move this candidate to %s", req.Actor.Role, req.RequestedState))
	}

	changedAt := requestcontext.Now(ctx).UTC()
	if !changedAt.After(current.StateChangedAt) {
		changedAt = current.StateChangedAt.Add(time.Microsecond)
	}
	next := current.Advance(req.RequestedState, changedAt)
	transition := &models.StateTransition{
		CandidateID:    current.ID,
		OrganizationID: current.OrganizationID,
		PreviousState:  current.State,
		NewState:       req.RequestedState,
		ChangedBy:      req.Actor.ID,
		ChangedByName:  req.Actor.Name,
		Comment:        req.Comment,
		ChangedAt:      changedAt,
	}
	evt, err := events.New(events.TypeCandidateStateChanged, current.OrganizationID,
		events.SubjectIDs{CandidateID: current.ID},
		events.CandidateStateChanged{
			CandidateName:     current.FullName,
			PreviousState:     current.State.String(),
			NewState:          req.RequestedState.String(),
			ChangedBy:         req.Actor.ID,
			ChangedByName:     req.Actor.Name,
			Comment:           req.Comment,
			Version:           next.Version,
			AssignedManagerID: current.AssignedManagerID,
			PortalUserID:      current.PortalUserID,
		}, changedAt)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		if err := stores.Candidates.CompareAndSwap(ctx, next, current.Version); err != nil {
			return translate(err, "update candidate")
		}
		if err := stores.History.Append(ctx, transition); err != nil {
			return translate(err, "append history")
		}
		if err := stores.Outbox.Enqueue(ctx, evt); err != nil {
			return translate(err, "enqueue event")
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "commit transition")
	}

	s.metrics.IncrementTransition(current.State.String(), req.RequestedState.String())
	s.logger.InfoContext(ctx, "candidate transition applied",
		"organization_id", current.OrganizationID,
		"candidate_id", current.ID,
		"previous_state", current.State,
		"new_state", req.RequestedState,
		"version", next.Version,
		"actor_id", req.Actor.ID,
		"event_id", evt.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return next, nil
}

// GetCandidate returns the candidate if the actor may see it.
func (s *Service) GetCandidate(ctx context.Context, org domain.OrganizationID, id domain.CandidateID, actor Actor) (*models.Candidate, error) {
	c, err := s.candidates.FindByID(ctx, org, id)
	if err != nil {
		return nil, translate(err, "load candidate")
	}
	if !s.authorizer.CanView(ctx, actor, c) {
		// Other users' applications are indistinguishable from absent ones.
		return nil, dErrors.New(dErrors.CodeNotFound, "candidate not found")
	}
	return c, nil
}

// History returns the transitions of one candidate, oldest first.
func (s *Service) History(ctx context.Context, org domain.OrganizationID, id domain.CandidateID, actor Actor) ([]*models.StateTransition, error) {
	if _, err := s.GetCandidate(ctx, org, id, actor); err != nil {
		return nil, err
	}
	history, err := s.history.ListByCandidate(ctx, org, id)
	if err != nil {
		return nil, translate(err, "list history")
	}
	return history, nil
}

// AllowedTransitions lists the states the actor could move c to.
func (s *Service) AllowedTransitions(ctx context.Context, c *models.Candidate, actor Actor) []models.State {
	var out []models.State
	for _, next := range models.AllowedTransitions(c.State) {
		if s.authorizer.CanTransition(ctx, actor, c, next) {
			out = append(out, next)
		}
	}
	return out
}

// translate maps store facts and context errors onto domain codes. Errors
// that already carry a code pass through.
func translate(err error, op string) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &coded):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+": deadline reached before commit")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "candidate not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "candidate was modified concurrently; re-read and retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op+" failed")
	}
}

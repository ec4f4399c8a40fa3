package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"talentflow/internal/candidate/models"
	"talentflow/internal/candidate/service"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/httputil"
	"talentflow/pkg/requestcontext"
)

// Service is the subset of the transition engine the handler needs.
type Service interface {
	ApplyTransition(ctx context.Context, req service.TransitionRequest) (*models.Candidate, error)
	GetCandidate(ctx context.Context, org domain.OrganizationID, id domain.CandidateID, actor service.Actor) (*models.Candidate, error)
	History(ctx context.Context, org domain.OrganizationID, id domain.CandidateID, actor service.Actor) ([]*models.StateTransition, error)
	AllowedTransitions(ctx context.Context, c *models.Candidate, actor service.Actor) []models.State
}

// Handler serves candidate state and history endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the candidate routes. Callers apply authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/candidates/{id}", h.HandleGet)
	r.Get("/candidates/{id}/history", h.HandleHistory)
	r.Patch("/candidates/{id}/state", h.HandleTransition)
}

// HandleTransition handles PATCH /candidates/{id}/state.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	org, actor, ok := h.principal(ctx, w)
	if !ok {
		return
	}
	candidateID, err := domain.ParseCandidateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.service.ApplyTransition(ctx, service.TransitionRequest{
		CandidateID:     candidateID,
		OrganizationID:  org,
		RequestedState:  req.ParsedState(),
		Actor:           actor,
		Comment:         req.Comment,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.logFailure(ctx, "candidate transition failed", err, candidateID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCandidateResponse(updated, h.service.AllowedTransitions(ctx, updated, actor)))
}

// HandleGet handles GET /candidates/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org, actor, ok := h.principal(ctx, w)
	if !ok {
		return
	}
	candidateID, err := domain.ParseCandidateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.GetCandidate(ctx, org, candidateID, actor)
	if err != nil {
		h.logFailure(ctx, "candidate lookup failed", err, candidateID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCandidateResponse(c, h.service.AllowedTransitions(ctx, c, actor)))
}

// HandleHistory handles GET /candidates/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org, actor, ok := h.principal(ctx, w)
	if !ok {
		return
	}
	candidateID, err := domain.ParseCandidateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	history, err := h.service.History(ctx, org, candidateID, actor)
	if err != nil {
		h.logFailure(ctx, "candidate history failed", err, candidateID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(history))
}

func (h *Handler) principal(ctx context.Context, w http.ResponseWriter) (domain.OrganizationID, service.Actor, bool) {
	org := requestcontext.OrganizationID(ctx)
	user := requestcontext.UserID(ctx)
	if org.IsZero() || user.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", service.Actor{}, false
	}
	return org, service.Actor{
		ID:   user,
		Name: requestcontext.ActorName(ctx),
		Role: requestcontext.Role(ctx),
	}, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, candidateID domain.CandidateID) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"organization_id", requestcontext.OrganizationID(ctx),
		"candidate_id", candidateID,
		"code", dErrors.CodeOf(err),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"talentflow/internal/notification/models"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/httputil"
	"talentflow/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, v models.Viewer, f models.ListFilter) ([]*models.Notification, error)
	MarkRead(ctx context.Context, v models.Viewer, id domain.NotificationID) error
	MarkAllRead(ctx context.Context, v models.Viewer) (int, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.HandleList)
	r.Post("/notifications/read-all", h.HandleReadAll)
	r.Post("/notifications/{id}/read", h.HandleRead)
}

// HandleList handles GET /notifications?unread=true&limit=N.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, ok := viewer(ctx, w)
	if !ok {
		return
	}

	var f models.ListFilter
	q := r.URL.Query()
	if raw := q.Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unread must be a boolean"))
			return
		}
		f.UnreadOnly = unread
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		f.Limit = limit
	}

	list, err := h.service.List(ctx, v, f)
	if err != nil {
		h.logger.ErrorContext(ctx, "list notifications failed",
			"request_id", requestcontext.RequestID(ctx),
			"organization_id", v.OrganizationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Notifications: list, Count: len(list)})
}

// HandleRead handles POST /notifications/{id}/read.
func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, ok := viewer(ctx, w)
	if !ok {
		return
	}
	id, err := domain.ParseNotificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.MarkRead(ctx, v, id); err != nil {
		h.logger.WarnContext(ctx, "mark notification read failed",
			"request_id", requestcontext.RequestID(ctx),
			"notification_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReadAll handles POST /notifications/read-all.
func (h *Handler) HandleReadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, ok := viewer(ctx, w)
	if !ok {
		return
	}
	n, err := h.service.MarkAllRead(ctx, v)
	if err != nil {
		h.logger.ErrorContext(ctx, "mark all notifications read failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReadAllResponse{Updated: n})
}

func viewer(ctx context.Context, w http.ResponseWriter) (models.Viewer, bool) {
	v := models.Viewer{
		OrganizationID: requestcontext.OrganizationID(ctx),
		UserID:         requestcontext.UserID(ctx),
		Role:           requestcontext.Role(ctx),
	}
	if v.OrganizationID.IsZero() || v.UserID.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return models.Viewer{}, false
	}
	return v, true
}

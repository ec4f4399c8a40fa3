// Package ingest accepts collaborator events over HTTP and stores them in the
// outbox for the relay to publish.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"talentflow/internal/events"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/httputil"
	"talentflow/pkg/platform/sentinel"
	"talentflow/pkg/requestcontext"
)

type Outbox interface {
	Enqueue(ctx context.Context, evt events.Event) error
}

type Handler struct {
	outbox Outbox
	logger *slog.Logger
}

func New(outbox Outbox, logger *slog.Logger) *Handler {
	return &Handler{outbox: outbox, logger: logger}
}

// Register mounts the ingest route. Callers apply the service token check.
func (h *Handler) Register(r chi.Router) {
	r.Post("/internal/events", h.HandleIngest)
}

// HandleIngest handles POST /internal/events.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	evt, err := req.toEvent(requestcontext.Now(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "rejected collaborator event",
			"request_id", requestID,
			"event_type", req.Type,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	duplicate := false
	if err := h.outbox.Enqueue(ctx, evt); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrDuplicate):
			duplicate = true
		case errors.Is(err, context.DeadlineExceeded):
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeTimeout, "enqueue timed out"))
			return
		default:
			h.logger.ErrorContext(ctx, "failed to enqueue collaborator event",
				"request_id", requestID,
				"event_id", evt.ID,
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "event store unavailable"))
			return
		}
	}

	h.logger.InfoContext(ctx, "collaborator event accepted",
		"request_id", requestID,
		"event_id", evt.ID,
		"event_type", evt.Type,
		"organization_id", evt.OrganizationID,
		"duplicate", duplicate,
	)
	httputil.WriteJSON(w, http.StatusAccepted, AcceptedResponse{EventID: evt.ID.String(), Duplicate: duplicate})
}

package eventbus

import (
	"context"
	"log/slog"

	"talentflow/internal/events"
)

// Router dispatches events to type-specific handlers.
type Router struct {
	handlers map[events.Type]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	return &Router{
		handlers: make(map[events.Type]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for one or more event types.
func (r *Router) Register(h Handler, types ...events.Type) {
	for _, t := range types {
		r.handlers[t] = h
	}
}

func (r *Router) Handle(ctx context.Context, evt events.Event) error {
	handler, ok := r.handlers[evt.Type]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, evt)
		}
		r.logger.WarnContext(ctx, "no handler for event type, acknowledging",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"organization_id", evt.OrganizationID,
		)
		return nil
	}
	return handler.Handle(ctx, evt)
}

// Package service exposes a viewer's notifications and read state.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"talentflow/internal/notification/models"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/sentinel"
	"talentflow/pkg/requestcontext"
)

type Store interface {
	List(ctx context.Context, v models.Viewer, f models.ListFilter) ([]*models.Notification, error)
	MarkRead(ctx context.Context, v models.Viewer, id domain.NotificationID, at time.Time) error
	MarkAllRead(ctx context.Context, v models.Viewer, at time.Time) (int, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, v models.Viewer, f models.ListFilter) ([]*models.Notification, error) {
	out, err := s.store.List(ctx, v, f)
	if err != nil {
		return nil, translate(err, "list notifications")
	}
	return out, nil
}

// Unread is the reconnect backlog: up to limit unread notifications, oldest
// first. The store is read page by page, so limit may exceed MaxListLimit.
func (s *Service) Unread(ctx context.Context, v models.Viewer, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	f := models.ListFilter{UnreadOnly: true, OldestFirst: true}
	for len(out) < limit {
		f.Limit = min(limit-len(out), models.MaxListLimit)
		page, err := s.store.List(ctx, v, f)
		if err != nil {
			return nil, translate(err, "load unread backlog")
		}
		out = append(out, page...)
		if len(page) < f.Limit {
			break
		}
		f.After = models.CursorOf(page[len(page)-1])
	}
	return out, nil
}

// MarkRead is idempotent; marking an already read notification succeeds.
func (s *Service) MarkRead(ctx context.Context, v models.Viewer, id domain.NotificationID) error {
	if err := s.store.MarkRead(ctx, v, id, requestcontext.Now(ctx)); err != nil {
		return translate(err, "mark notification read")
	}
	s.logger.InfoContext(ctx, "notification marked read",
		"organization_id", v.OrganizationID,
		"user_id", v.UserID,
		"notification_id", id,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, v models.Viewer) (int, error) {
	n, err := s.store.MarkAllRead(ctx, v, requestcontext.Now(ctx))
	if err != nil {
		return 0, translate(err, "mark all notifications read")
	}
	return n, nil
}

func translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "notification not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op+" failed")
	}
}

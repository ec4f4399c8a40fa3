// Package builder turns domain events into persisted notifications and hands
// the newly created ones to live delivery.
package builder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"talentflow/internal/events"
	"talentflow/internal/notification/metrics"
	"talentflow/internal/notification/models"
	"talentflow/pkg/domain"
)

// Store persists a batch atomically and returns only the rows whose
// idempotency key was not present before.
type Store interface {
	InsertBatch(ctx context.Context, batch []*models.Notification) ([]*models.Notification, error)
}

// Directory resolves tenant members holding one of roles.
type Directory interface {
	MembersWithRoles(ctx context.Context, org domain.OrganizationID, roles []domain.Role) ([]domain.UserID, error)
}

// Deliverer pushes a stored notification to connected sessions. It must not
// block on slow consumers.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification)
}

type Builder struct {
	store     Store
	directory Directory
	deliverer Deliverer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Builder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(b *Builder) { b.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func New(store Store, directory Directory, deliverer Deliverer, opts ...Option) *Builder {
	b := &Builder{
		store:     store,
		directory: directory,
		deliverer: deliverer,
		logger:    slog.Default(),
		tracer:    otel.Tracer("talentflow/notification"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle is the bus handler. A nil return acknowledges the event: that
// happens after persistence, for poison payloads and for events that address
// nobody. Any other error leaves the event for redelivery.
func (b *Builder) Handle(ctx context.Context, evt events.Event) error {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "notification.Handle", trace.WithAttributes(
		attribute.String("event_id", evt.ID.String()),
		attribute.String("event_type", evt.Type.String()),
		attribute.String("organization_id", evt.OrganizationID.String()),
	))
	defer span.End()
	defer func() { b.metrics.ObserveHandle(time.Since(start)) }()

	drafts, err := b.plan(ctx, evt)
	if errors.Is(err, events.ErrMalformedPayload) {
		b.metrics.IncrementPoison(evt.Type.String())
		span.SetStatus(codes.Error, "malformed payload")
		b.logger.WarnContext(ctx, "dropping event with malformed payload",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"organization_id", evt.OrganizationID,
			"error", err,
		)
		return nil
	}
	if err != nil {
		return b.fail(ctx, span, evt, err)
	}
	if len(drafts) == 0 {
		b.logger.DebugContext(ctx, "event produced no notifications",
			"event_id", evt.ID,
			"event_type", evt.Type,
		)
		return nil
	}

	createdAt := b.now()
	batch := make([]*models.Notification, 0, len(drafts))
	for _, d := range drafts {
		n, err := models.FromDraft(evt, d, createdAt)
		if err != nil {
			return b.fail(ctx, span, evt, err)
		}
		batch = append(batch, n)
	}

	inserted, err := b.store.InsertBatch(ctx, batch)
	if err != nil {
		return b.fail(ctx, span, evt, err)
	}
	b.metrics.IncrementCreated(evt.Type.String(), len(inserted))
	b.metrics.IncrementDuplicates(evt.Type.String(), len(batch)-len(inserted))
	span.SetAttributes(attribute.Int("notifications_created", len(inserted)))

	for _, n := range inserted {
		b.deliverer.Deliver(ctx, n)
	}

	b.logger.InfoContext(ctx, "notifications created",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"organization_id", evt.OrganizationID,
		"created", len(inserted),
		"duplicates", len(batch)-len(inserted),
	)
	return nil
}

func (b *Builder) fail(ctx context.Context, span trace.Span, evt events.Event, err error) error {
	b.metrics.IncrementFailure(evt.Type.String())
	span.RecordError(err)
	span.SetStatus(codes.Error, "not acknowledged")
	b.logger.ErrorContext(ctx, "notification build failed, event will be redelivered",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"organization_id", evt.OrganizationID,
		"error", err,
	)
	return err
}

// Package realtime keeps the live WebSocket sessions of every organization
// and fans stored notifications out to them.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"talentflow/internal/notification/models"
	"talentflow/internal/realtime/metrics"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

// Backlog loads a viewer's unread notifications, oldest first.
type Backlog interface {
	Unread(ctx context.Context, v models.Viewer, limit int) ([]*models.Notification, error)
}

// Registry indexes sessions by organization. The lock covers only map
// updates and snapshots; frames are queued after it is released.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.OrganizationID]map[domain.ConnectionID]*Session

	backlog      Backlog
	backlogLimit int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// DefaultBacklogLimit caps the unread notifications sent on connect.
const DefaultBacklogLimit = 1000

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithBacklogLimit(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.backlogLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(backlog Backlog, opts ...Option) *Registry {
	r := &Registry{
		sessions:     make(map[domain.OrganizationID]map[domain.ConnectionID]*Session),
		backlog:      backlog,
		backlogLimit: DefaultBacklogLimit,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers an authenticated session, queues its unread backlog as
// one frame and switches it to Streaming. The backlog holds the oldest
// unread items up to the configured limit; a truncated backlog is logged
// and counted so clients page the remainder over HTTP. Live notifications that arrive
// while the backlog loads are queued behind it; those already in the backlog
// are not sent twice. On error the session is closed.
func (r *Registry) Attach(ctx context.Context, s *Session) error {
	if st := s.State(); st != StateAuthenticated {
		return illegalTransition(st, StateStreaming)
	}

	r.mu.Lock()
	org := r.sessions[s.OrganizationID]
	if org == nil {
		org = make(map[domain.ConnectionID]*Session)
		r.sessions[s.OrganizationID] = org
	}
	org[s.ID] = s
	r.mu.Unlock()
	r.metrics.SessionAttached()

	orgID, userID, role := s.viewer()
	items, err := r.backlog.Unread(ctx, models.Viewer{OrganizationID: orgID, UserID: userID, Role: role}, r.backlogLimit+1)
	if err != nil {
		r.Detach(ctx, s, ReasonBacklogFailed)
		return err
	}
	if len(items) > r.backlogLimit {
		items = items[:r.backlogLimit]
		r.metrics.IncrementBacklogTruncated()
		r.logger.WarnContext(ctx, "realtime backlog truncated",
			"connection_id", s.ID,
			"organization_id", s.OrganizationID,
			"user_id", s.UserID,
			"limit", r.backlogLimit,
		)
	}
	payload, err := EncodeUnread(items)
	if err != nil {
		r.Detach(ctx, s, ReasonBacklogFailed)
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode backlog")
	}
	ids := make([]domain.NotificationID, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ID)
	}

	overflow, err := s.startStreaming(payload, ids)
	if err != nil {
		r.Detach(ctx, s, ReasonBacklogFailed)
		return err
	}
	r.metrics.ObserveBacklog(len(items))
	if overflow {
		r.metrics.IncrementDropped()
		r.Detach(ctx, s, ReasonOverflow)
		return nil
	}

	r.logger.InfoContext(ctx, "realtime session streaming",
		"connection_id", s.ID,
		"organization_id", s.OrganizationID,
		"user_id", s.UserID,
		"client", s.Client,
		"backlog", len(items),
	)
	return nil
}

// Detach deregisters s and closes it. Repeated calls are no-ops.
func (r *Registry) Detach(ctx context.Context, s *Session, reason CloseReason) {
	r.mu.Lock()
	if org := r.sessions[s.OrganizationID]; org != nil {
		delete(org, s.ID)
		if len(org) == 0 {
			delete(r.sessions, s.OrganizationID)
		}
	}
	r.mu.Unlock()

	if !s.close(reason) {
		return
	}
	r.metrics.SessionClosed(string(reason))
	r.logger.InfoContext(ctx, "realtime session closed",
		"connection_id", s.ID,
		"organization_id", s.OrganizationID,
		"user_id", s.UserID,
		"reason", reason,
	)
}

// Deliver queues n on every session of its organization that may see it:
// the recipient for direct rows, members holding an audience role for
// broadcasts. A session whose queue overflows is closed so the client
// reconnects and reloads its backlog.
func (r *Registry) Deliver(ctx context.Context, n *models.Notification) {
	targets := r.matching(n)
	if len(targets) == 0 {
		return
	}
	payload, err := EncodeNew(n)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode notification",
			"notification_id", n.ID,
			"error", err,
		)
		return
	}
	for _, s := range targets {
		accepted, overflow := s.offer(n.ID, payload)
		if !accepted {
			continue
		}
		r.metrics.IncrementDelivered()
		if overflow {
			r.metrics.IncrementDropped()
			r.logger.WarnContext(ctx, "session queue overflow, forcing reconnect",
				"connection_id", s.ID,
				"organization_id", s.OrganizationID,
				"user_id", s.UserID,
			)
			r.Detach(ctx, s, ReasonOverflow)
		}
	}
}

func (r *Registry) matching(n *models.Notification) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org := r.sessions[n.OrganizationID]
	out := make([]*Session, 0, len(org))
	for _, s := range org {
		if n.VisibleTo(s.OrganizationID, s.UserID, s.Role) {
			out = append(out, s)
		}
	}
	return out
}

// Sweep closes sessions with no heartbeat within maxIdle and returns how
// many it reaped.
func (r *Registry) Sweep(ctx context.Context, maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	var stale []*Session
	for _, s := range r.snapshot() {
		if s.LastHeartbeat().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		r.Detach(ctx, s, ReasonHeartbeatTimeout)
	}
	return len(stale)
}

// Run sweeps every interval until ctx ends, then closes all sessions.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll(context.WithoutCancel(ctx), ReasonShutdown)
			return nil
		case <-ticker.C:
			if n := r.Sweep(ctx, maxIdle); n > 0 {
				r.logger.InfoContext(ctx, "reaped stale realtime sessions", "count", n)
			}
		}
	}
}

func (r *Registry) CloseAll(ctx context.Context, reason CloseReason) {
	for _, s := range r.snapshot() {
		r.Detach(ctx, s, reason)
	}
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, org := range r.sessions {
		n += len(org)
	}
	return n
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, org := range r.sessions {
		for _, s := range org {
			out = append(out, s)
		}
	}
	return out
}

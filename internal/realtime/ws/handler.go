// Package ws serves the realtime WebSocket endpoint with gorilla/websocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"talentflow/internal/realtime"
	"talentflow/internal/realtime/metrics"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/httputil"
	authmw "talentflow/pkg/platform/middleware/auth"
	"talentflow/pkg/requestcontext"
)

// clients only send control frames
const maxClientMessageBytes = 512

type Config struct {
	QueueCapacity  int
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	AllowedOrigins []string
}

type Registry interface {
	Attach(ctx context.Context, s *realtime.Session) error
	Detach(ctx context.Context, s *realtime.Session, reason realtime.CloseReason)
}

type Handler struct {
	authn    authmw.Authenticator
	registry Registry
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(authn authmw.Authenticator, registry Registry, cfg Config, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		authn:    authn,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts GET /ws. The handshake authenticates itself.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ws", h.HandleConnect)
}

// checkOrigin allows everything when no origins are configured.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// HandleConnect validates the token before upgrading. A rejected handshake
// gets a JSON error and never reaches the registry.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	org, err := domain.ParseOrganizationID(r.URL.Query().Get("organizationId"))
	if err != nil {
		h.reject(ctx, w, err)
		return
	}
	principal, err := h.authn.Authenticate(ctx, authmw.BearerToken(r, true))
	if err != nil {
		h.reject(ctx, w, err)
		return
	}
	if principal.OrganizationID != org {
		h.reject(ctx, w, dErrors.New(dErrors.CodeUnauthorized, "token does not belong to this organization"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			"request_id", requestID,
			"error", err,
		)
		return
	}

	userAgent := requestcontext.UserAgent(ctx)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	s := realtime.NewSession(principal.OrganizationID, principal.UserID, principal.Role,
		realtime.DescribeClient(userAgent), h.cfg.QueueCapacity)
	if err := s.Authenticate(requestcontext.Now(ctx)); err != nil {
		_ = conn.Close()
		return
	}

	h.logger.InfoContext(ctx, "realtime handshake accepted",
		"request_id", requestID,
		"connection_id", s.ID,
		"organization_id", s.OrganizationID,
		"client", s.Client,
		"client_ip", requestcontext.ClientIP(ctx),
	)

	attachCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.WriteWait)
	err = h.registry.Attach(attachCtx, s)
	cancel()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to attach realtime session",
			"request_id", requestID,
			"connection_id", s.ID,
			"organization_id", s.OrganizationID,
			"error", err,
		)
		h.closeWith(conn, realtime.ReasonBacklogFailed)
		return
	}

	// the request context ends when this handler returns
	sessionCtx := context.WithoutCancel(ctx)
	go h.writePump(sessionCtx, conn, s)
	h.readPump(sessionCtx, conn, s)
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInvalidInput || code == dErrors.CodeForbidden {
		err = dErrors.Wrap(err, dErrors.CodeUnauthorized, dErrors.MessageOf(err))
		code = dErrors.CodeUnauthorized
	}
	h.metrics.HandshakeRejected(string(code))
	h.logger.WarnContext(ctx, "realtime handshake rejected",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

// readPump keeps the read deadline moving on pongs and any client frame.
func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, s *realtime.Session) {
	defer h.registry.Detach(ctx, s, realtime.ReasonClientGone)

	conn.SetReadLimit(maxClientMessageBytes)
	alive := func() {
		now := time.Now()
		s.Heartbeat(now)
		_ = conn.SetReadDeadline(now.Add(h.cfg.PongWait))
	}
	alive()
	conn.SetPongHandler(func(string) error {
		alive()
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.DebugContext(ctx, "realtime read ended",
					"connection_id", s.ID,
					"error", err,
				)
			}
			return
		}
		alive()
	}
}

// writePump is the only writer on conn.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, s *realtime.Session) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-s.Done():
			h.closeWith(conn, s.CloseReason())
			return
		case <-s.Wake():
			for _, payload := range s.Next() {
				_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					h.transportFailed(ctx, s, err)
					return
				}
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				h.transportFailed(ctx, s, err)
				return
			}
		}
	}
}

func (h *Handler) transportFailed(ctx context.Context, s *realtime.Session, err error) {
	err = dErrors.Wrap(err, dErrors.CodeTransport, "send to session failed")
	h.logger.WarnContext(ctx, "realtime send failed",
		"connection_id", s.ID,
		"organization_id", s.OrganizationID,
		"error", err,
	)
	h.registry.Detach(ctx, s, realtime.ReasonTransport)
}

func (h *Handler) closeWith(conn *websocket.Conn, reason realtime.CloseReason) {
	msg := websocket.FormatCloseMessage(reason.CloseCode(), string(reason))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteWait))
	_ = conn.Close()
}

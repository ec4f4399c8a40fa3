// Package client is a Go consumer of the realtime endpoint that follows the
// reconnection contract: back off between attempts, take the fresh backlog
// on every connect and drop notifications it has already seen.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"talentflow/internal/notification/models"
	"talentflow/internal/realtime"
	"talentflow/pkg/domain"
)

// ErrUnauthorized means the server refused the handshake token. The client
// stops instead of retrying.
var ErrUnauthorized = errors.New("realtime handshake unauthorized")

// TokenSource returns the bearer token for the next connect attempt.
type TokenSource func(ctx context.Context) (string, error)

// HandleFunc receives each notification once.
type HandleFunc func(n *models.Notification)

type Client struct {
	endpoint    string
	org         domain.OrganizationID
	token       TokenSource
	dialer      *websocket.Dialer
	maxAttempts uint64
	initial     time.Duration
	maxInterval time.Duration
	logger      *slog.Logger

	seen *seenSet
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithBackoff bounds reconnection: at most attempts consecutive failed
// dials, waiting from initial up to max between them.
func WithBackoff(attempts uint64, initial, max time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = attempts
		c.initial = initial
		c.maxInterval = max
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for endpoint, the ws:// or wss:// URL of GET /ws.
func New(endpoint string, org domain.OrganizationID, token TokenSource, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		org:         org,
		token:       token,
		dialer:      websocket.DefaultDialer,
		maxAttempts: 10,
		initial:     500 * time.Millisecond,
		maxInterval: 30 * time.Second,
		logger:      slog.Default(),
		seen:        newSeenSet(4096),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and streams until ctx ends, the handshake is refused or the
// dial attempts are exhausted.
func (c *Client) Run(ctx context.Context, handle HandleFunc) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		err = c.stream(ctx, conn, handle)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.InfoContext(ctx, "realtime connection lost, reconnecting", "error", err)
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxInterval = c.maxInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxAttempts), ctx)

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = c.dial(ctx)
		return err
	}, b, func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "realtime dial failed", "error", err, "retry_in", wait)
	})
	return conn, err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("obtain token: %w", err))
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse endpoint: %w", err))
	}
	q := u.Query()
	q.Set("organizationId", c.org.String())
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(ErrUnauthorized)
		}
		return nil, err
	}
	return conn, nil
}

// stream reads frames until the connection ends. Pings are answered by the
// default handler inside ReadMessage.
func (c *Client) stream(ctx context.Context, conn *websocket.Conn, handle HandleFunc) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg realtime.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WarnContext(ctx, "ignoring undecodable realtime frame", "error", err)
			continue
		}
		switch msg.Type {
		case realtime.MessageNotificationUnread:
			var items []*models.Notification
			if err := json.Unmarshal(msg.Data, &items); err != nil {
				c.logger.WarnContext(ctx, "ignoring undecodable backlog", "error", err)
				continue
			}
			for _, n := range items {
				c.emit(n, handle)
			}
		case realtime.MessageNotificationNew:
			var n models.Notification
			if err := json.Unmarshal(msg.Data, &n); err != nil {
				c.logger.WarnContext(ctx, "ignoring undecodable notification", "error", err)
				continue
			}
			c.emit(&n, handle)
		}
	}
}

func (c *Client) emit(n *models.Notification, handle HandleFunc) {
	if c.seen.add(n.ID) {
		handle(n)
	}
}

// seenSet remembers the most recent ids, evicting the oldest.
type seenSet struct {
	ids   map[domain.NotificationID]struct{}
	order []domain.NotificationID
	limit int
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{ids: make(map[domain.NotificationID]struct{}, limit), limit: limit}
}

// add reports whether id was new.
func (s *seenSet) add(id domain.NotificationID) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) == s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

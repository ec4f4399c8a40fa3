// Package relay shares live notifications between server nodes over Redis
// pub/sub so a session sees notifications built on any node.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"talentflow/internal/notification/models"
	"talentflow/internal/realtime/metrics"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/circuit"
)

const (
	channelPrefix  = "talentflow:notifications:"
	publishTimeout = 2 * time.Second
)

// ChannelFor names the pub/sub channel of one organization.
func ChannelFor(org domain.OrganizationID) string {
	return channelPrefix + org.String()
}

// Local is the node's own registry.
type Local interface {
	Deliver(ctx context.Context, n *models.Notification)
}

// Publisher implements the builder's Deliverer by publishing to Redis. Every
// node, this one included, receives the message through its Subscriber. When
// a publish fails the notification is delivered to local sessions directly,
// and local delivery continues while the breaker stays open.
type Publisher struct {
	client  redis.UniversalClient
	local   Local
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) { p.breaker = b }
}

func NewPublisher(client redis.UniversalClient, local Local, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		local:   local,
		breaker: circuit.New("realtime-relay"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Deliver(ctx context.Context, n *models.Notification) {
	payload, err := json.Marshal(n)
	if err == nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = p.client.Publish(pctx, ChannelFor(n.OrganizationID), payload).Err()
		cancel()
	}

	if err != nil {
		_, change := p.breaker.RecordFailure()
		if change.Opened {
			p.logger.WarnContext(ctx, "realtime relay circuit opened, delivering locally",
				"breaker", p.breaker.Name(),
				"error", err,
			)
		}
		p.logger.WarnContext(ctx, "realtime relay publish failed",
			"notification_id", n.ID,
			"organization_id", n.OrganizationID,
			"error", err,
		)
		p.fallback(ctx, n)
		return
	}

	usePrimary, change := p.breaker.RecordSuccess()
	if change.Closed {
		p.logger.InfoContext(ctx, "realtime relay circuit closed", "breaker", p.breaker.Name())
	}
	if !usePrimary {
		// the subscriber may be down too; clients drop repeated ids
		p.fallback(ctx, n)
	}
}

func (p *Publisher) fallback(ctx context.Context, n *models.Notification) {
	p.metrics.IncrementRelayFallback()
	p.local.Deliver(ctx, n)
}

// Subscriber feeds every organization's relayed notifications to the local
// registry.
type Subscriber struct {
	client redis.UniversalClient
	local  Local
	logger *slog.Logger
}

func NewSubscriber(client redis.UniversalClient, local Local, logger *slog.Logger) *Subscriber {
	return &Subscriber{client: client, local: local, logger: logger}
}

// Run blocks until ctx ends or the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	ps := s.client.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, msg *redis.Message) {
	var n models.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		s.logger.WarnContext(ctx, "dropping undecodable relay message",
			"channel", msg.Channel,
			"error", err,
		)
		return
	}
	org := strings.TrimPrefix(msg.Channel, channelPrefix)
	if n.OrganizationID.String() != org {
		s.logger.WarnContext(ctx, "relay message organization does not match channel",
			"channel", msg.Channel,
			"organization_id", n.OrganizationID,
		)
		return
	}
	s.local.Deliver(ctx, &n)
}

//go:build integration

package relay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/pkg/domain"
	"talentflow/pkg/testutil/containers"
)

func TestRelay_DeliversAcrossNodes(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA, nodeB := &localSink{}, &localSink{}
	for _, sink := range []*localSink{nodeA, nodeB} {
		sub := NewSubscriber(rc.Client, sink, logger)
		go func() { _ = sub.Run(ctx) }()
	}

	pub := NewPublisher(rc.Client, nodeA, WithLogger(logger))
	n := notification(t, "acme")

	// subscriptions are asynchronous; publish until both nodes have it
	require.Eventually(t, func() bool {
		if len(nodeA.ids()) == 0 || len(nodeB.ids()) == 0 {
			pub.Deliver(ctx, n)
			return false
		}
		return true
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, n.ID, nodeB.ids()[0])
	assert.Contains(t, nodeA.ids(), n.ID)
	assert.Equal(t, domain.OrganizationID("acme"), nodeB.got[0].OrganizationID)
}

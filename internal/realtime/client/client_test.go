package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/internal/events"
	"talentflow/internal/notification/models"
	"talentflow/internal/notification/service"
	"talentflow/internal/notification/store"
	"talentflow/internal/realtime"
	"talentflow/internal/realtime/client"
	"talentflow/internal/realtime/ws"
	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
	authmw "talentflow/pkg/platform/middleware/auth"
)

type singleToken struct{}

func (singleToken) Authenticate(_ context.Context, token string) (*authmw.Principal, error) {
	if token != "rh-token" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return &authmw.Principal{OrganizationID: "acme", UserID: "rh-1", Role: domain.RoleRH}, nil
}

type collector struct {
	mu  sync.Mutex
	ids []domain.NotificationID
}

func (c *collector) handle(n *models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, n.ID)
}

func (c *collector) snapshot() []domain.NotificationID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.NotificationID(nil), c.ids...)
}

func notificationFor(t *testing.T, title string, at time.Time) *models.Notification {
	t.Helper()
	evt, err := events.New(events.TypeCandidateStateChanged, "acme",
		events.SubjectIDs{CandidateID: "42"},
		events.CandidateStateChanged{NewState: "PRESCREENED"}, at)
	require.NoError(t, err)
	n, err := models.FromDraft(evt, models.Draft{Recipient: "rh-1", Title: title}, at)
	require.NoError(t, err)
	return n
}

func startServer(t *testing.T) (string, *realtime.Registry, *store.InMemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewInMemoryStore()
	reg := realtime.NewRegistry(service.New(st), realtime.WithLogger(logger))
	r := chi.NewRouter()
	ws.New(singleToken{}, reg, ws.Config{
		QueueCapacity: 8,
		PingPeriod:    time.Second,
		PongWait:      2 * time.Second,
		WriteWait:     time.Second,
	}, logger).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		reg.CloseAll(context.Background(), realtime.ReasonShutdown)
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", reg, st
}

func tokenOf(tok string) client.TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

func TestClient_ReconnectsAndDeduplicatesBacklog(t *testing.T) {
	endpoint, reg, st := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first := notificationFor(t, "first", t0)
	second := notificationFor(t, "second", t0.Add(time.Minute))
	_, err := st.InsertBatch(ctx, []*models.Notification{first, second})
	require.NoError(t, err)

	got := &collector{}
	c := client.New(endpoint, "acme", tokenOf("rh-token"),
		client.WithBackoff(5, 10*time.Millisecond, 50*time.Millisecond),
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, got.handle) }()

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	// server forces a reconnect; the new backlog repeats both unread items
	third := notificationFor(t, "third", t0.Add(2*time.Minute))
	_, err = st.InsertBatch(ctx, []*models.Notification{third})
	require.NoError(t, err)
	reg.CloseAll(ctx, realtime.ReasonOverflow)

	require.Eventually(t, func() bool { return len(got.snapshot()) == 3 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 10*time.Millisecond)

	reg.Deliver(ctx, third)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []domain.NotificationID{first.ID, second.ID, third.ID}, got.snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestClient_StopsOnUnauthorized(t *testing.T) {
	endpoint, _, _ := startServer(t)
	c := client.New(endpoint, "acme", tokenOf("stale-token"),
		client.WithBackoff(5, 10*time.Millisecond, 50*time.Millisecond),
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	err := c.Run(context.Background(), func(*models.Notification) {})
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestClient_GivesUpAfterBoundedAttempts(t *testing.T) {
	srv := httptest.NewServer(nil)
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	c := client.New(endpoint, "acme", tokenOf("rh-token"),
		client.WithBackoff(2, time.Millisecond, 5*time.Millisecond),
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	err := c.Run(context.Background(), func(*models.Notification) {})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, client.ErrUnauthorized)
}

package realtime

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession("acme", "rh-1", domain.RoleRH, "test", 4)
	assert.Equal(t, StateConnecting, s.State())

	accepted, _ := s.offer(domain.NewNotificationID(), []byte("early"))
	assert.False(t, accepted, "connecting sessions take no frames")

	_, err := s.startStreaming([]byte("backlog"), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Authenticate(now))
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, now, s.LastHeartbeat())
	assert.Error(t, s.Authenticate(now))

	accepted, _ = s.offer(domain.NewNotificationID(), []byte("live"))
	assert.True(t, accepted)
	assert.Nil(t, s.Next(), "nothing is released before streaming")

	_, err = s.startStreaming([]byte("backlog"), nil)
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, s.State())
	select {
	case <-s.Wake():
	default:
		t.Fatal("streaming did not wake the writer")
	}
	assert.Equal(t, [][]byte{[]byte("backlog"), []byte("live")}, s.Next())

	assert.True(t, s.close(ReasonClientGone))
	assert.False(t, s.close(ReasonShutdown), "close is idempotent")
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, ReasonClientGone, s.CloseReason())
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}

	accepted, _ = s.offer(domain.NewNotificationID(), []byte("late"))
	assert.False(t, accepted)
}

func TestSession_BacklogSuppressesLiveDuplicates(t *testing.T) {
	s := NewSession("acme", "rh-1", domain.RoleRH, "test", 8)
	require.NoError(t, s.Authenticate(time.Now()))

	inBacklog := domain.NewNotificationID()
	s.offer(inBacklog, []byte("dup"))
	s.offer(domain.NewNotificationID(), []byte("fresh"))

	_, err := s.startStreaming([]byte("backlog"), []domain.NotificationID{inBacklog})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("backlog"), []byte("fresh")}, s.Next())

	accepted, _ := s.offer(inBacklog, []byte("dup again"))
	assert.False(t, accepted)
}

func TestCloseReason_CloseCode(t *testing.T) {
	assert.Equal(t, 1013, ReasonOverflow.CloseCode())
	assert.Equal(t, websocket.CloseGoingAway, ReasonShutdown.CloseCode())
	assert.Equal(t, websocket.CloseNormalClosure, ReasonHeartbeatTimeout.CloseCode())
}

package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"talentflow/pkg/domain"
	dErrors "talentflow/pkg/domain-errors"
)

// State is the lifecycle position of a session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CloseReason says why a session was torn down.
type CloseReason string

const (
	ReasonClientGone       CloseReason = "client_gone"
	ReasonHeartbeatTimeout CloseReason = "heartbeat_timeout"
	ReasonOverflow         CloseReason = "queue_overflow"
	ReasonTransport        CloseReason = "transport_error"
	ReasonBacklogFailed    CloseReason = "backlog_failed"
	ReasonShutdown         CloseReason = "shutdown"
)

// CloseCode is the WebSocket close code sent to the client.
func (r CloseReason) CloseCode() int {
	switch r {
	case ReasonOverflow:
		return websocket.CloseTryAgainLater
	case ReasonShutdown:
		return websocket.CloseGoingAway
	case ReasonBacklogFailed:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseNormalClosure
	}
}

// Session is one authenticated client connection. The transport pumps read
// frames with Next and watch Done; the registry feeds it with offer.
type Session struct {
	ID              domain.ConnectionID
	OrganizationID  domain.OrganizationID
	UserID          domain.UserID
	Role            domain.Role
	Client          string
	AuthenticatedAt time.Time

	mu       sync.Mutex
	state    State
	queue    *ring
	suppress map[domain.NotificationID]struct{}
	reason   CloseReason

	lastHeartbeat atomic.Int64
	wake          chan struct{}
	done          chan struct{}
}

// NewSession creates a session in the Connecting state with an outbound
// queue of capacity frames.
func NewSession(org domain.OrganizationID, user domain.UserID, role domain.Role, client string, capacity int) *Session {
	return &Session{
		ID:             domain.NewConnectionID(),
		OrganizationID: org,
		UserID:         user,
		Role:           role,
		Client:         client,
		state:          StateConnecting,
		queue:          newRing(capacity),
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticate records a validated handshake.
func (s *Session) Authenticate(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return illegalTransition(s.state, StateAuthenticated)
	}
	s.state = StateAuthenticated
	s.AuthenticatedAt = at
	s.lastHeartbeat.Store(at.UnixNano())
	return nil
}

// Heartbeat records that the client showed signs of life.
func (s *Session) Heartbeat(at time.Time) {
	s.lastHeartbeat.Store(at.UnixNano())
}

func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

// Wake fires when frames are ready for Next.
func (s *Session) Wake() <-chan struct{} { return s.wake }

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseReason is valid after Done is closed.
func (s *Session) CloseReason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Next takes every queued frame while streaming.
func (s *Session) Next() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return nil
	}
	frames := s.queue.drain()
	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.payload)
	}
	return out
}

func (s *Session) viewer() (domain.OrganizationID, domain.UserID, domain.Role) {
	return s.OrganizationID, s.UserID, s.Role
}

// offer queues a live notification. accepted is false when the session is
// closed or the item already went out in the backlog. overflow reports that
// the oldest queued frame was dropped to make room.
func (s *Session) offer(id domain.NotificationID, payload []byte) (accepted, overflow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAuthenticated, StateStreaming:
	default:
		return false, false
	}
	if _, sent := s.suppress[id]; sent {
		return false, false
	}
	overflow = s.queue.push(frame{id: id, payload: payload})
	if s.state == StateStreaming {
		s.signal()
	}
	return true, overflow
}

// startStreaming puts the backlog frame ahead of every live item queued
// while the backlog was loading, dropping live items the backlog already
// contains.
func (s *Session) startStreaming(backlog []byte, backlogIDs []domain.NotificationID) (overflow bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return false, illegalTransition(s.state, StateStreaming)
	}
	s.suppress = make(map[domain.NotificationID]struct{}, len(backlogIDs))
	for _, id := range backlogIDs {
		s.suppress[id] = struct{}{}
	}

	live := s.queue.drain()
	overflow = s.queue.push(frame{payload: backlog})
	for _, f := range live {
		if _, sent := s.suppress[f.id]; sent {
			continue
		}
		if s.queue.push(f) {
			overflow = true
		}
	}
	s.state = StateStreaming
	s.signal()
	return overflow, nil
}

// close moves the session to Closed and discards queued frames. It reports
// whether this call performed the teardown.
func (s *Session) close(reason CloseReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.reason = reason
	s.queue.drain()
	close(s.done)
	return true
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func illegalTransition(from, to State) error {
	return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("session cannot move from %s to %s", from, to))
}

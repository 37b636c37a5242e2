package gateway

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	SendQueueSize = 128
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10

	// Close code sent to a connection replaced by a newer one from the
	// same user.
	CloseSessionReplaced = 4000
	// Close code sent when the authenticate frame is rejected.
	CloseAuthFailed = 4001
)

// State is the lifecycle of one connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosed
)

// Session owns one client connection: identity once authenticated, a
// buffered send queue drained by the write loop, and an idempotent close.
// Tests construct sessions with a nil conn and read SendQueue directly.
type Session struct {
	id          string
	userID      atomic.Value // string, empty until authenticated
	connectedAt time.Time

	conn      *websocket.Conn
	SendQueue chan []byte
	done      chan struct{}
	closed    atomic.Int32
	state     atomic.Int32

	log *zap.Logger
}

func NewSession(id string, conn *websocket.Conn, log *zap.Logger) *Session {
	s := &Session{
		id:        id,
		conn:      conn,
		SendQueue: make(chan []byte, SendQueueSize),
		done:      make(chan struct{}),
		log:       log,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string {
	v, _ := s.userID.Load().(string)
	return v
}

func (s *Session) setUserID(userID string) { s.userID.Store(userID) }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(next State) { s.state.Store(int32(next)) }

func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// TrySend enqueues a payload without blocking. A full queue means the client
// cannot keep up; the connection is dropped rather than stalling the sender.
func (s *Session) TrySend(payload []byte) bool {
	if s.closed.Load() == 1 {
		return false
	}
	select {
	case s.SendQueue <- payload:
		return true
	default:
		s.log.Warn("session backpressure overflow, dropping connection",
			zap.String("session_id", s.id),
			zap.String("user_id", s.UserID()),
		)
		s.Close(websocket.CloseInternalServerErr, "backpressure overflow")
		return false
	}
}

func (s *Session) Close(code int, reason string) {
	if !s.closed.CompareAndSwap(0, 1) {
		return
	}
	s.setState(StateClosed)
	close(s.done)

	if s.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.conn.Close()
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close(websocket.CloseNormalClosure, "server closing")
	}()

	for {
		select {
		case payload, ok := <-s.SendQueue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Warn("session write error",
					zap.String("session_id", s.id),
					zap.String("user_id", s.UserID()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Warn("session ping error",
					zap.String("session_id", s.id),
					zap.String("user_id", s.UserID()),
					zap.Error(err),
				)
				return
			}
		case <-s.done:
			return
		}
	}
}

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/observability"
	"github.com/teamgrid/realtime/internal/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to websocket sessions and runs their read
// loops. Authentication happens in-band via the authenticate frame, not at
// upgrade time.
type Handler struct {
	gateway *Gateway
	mirror  *presence.Mirror
	log     *zap.Logger
}

func NewHandler(gw *Gateway, mirror *presence.Mirror, log *zap.Logger) *Handler {
	return &Handler{gateway: gw, mirror: mirror, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade error", zap.Error(err))
		return
	}

	session := NewSession(uuid.NewString(), conn, h.log)
	session.Start()
	observability.WebSocketConnectionsActive.Inc()
	h.log.Info("connected", zap.String("session_id", session.ID()))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.readLoop(session)
}

func (h *Handler) readLoop(s *Session) {
	heartbeatDone := make(chan struct{})
	defer func() {
		close(heartbeatDone)
		s.Close(websocket.CloseNormalClosure, "read loop exit")
		h.gateway.Disconnect(s, "transport closed")
		observability.WebSocketConnectionsActive.Dec()
	}()

	h.startHeartbeat(s, heartbeatDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("read loop error",
					zap.String("session_id", s.ID()),
					zap.String("user_id", s.UserID()),
					zap.Error(err),
				)
			}
			return
		}
		h.gateway.HandleFrame(s, payload)
	}
}

// startHeartbeat keeps the Redis presence mirror's TTL alive while the
// session is up. No-op without a mirror.
func (h *Handler) startHeartbeat(s *Session, done <-chan struct{}) {
	if h.mirror == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if userID := s.UserID(); userID != "" {
					if err := h.mirror.Refresh(context.Background(), userID); err != nil {
						h.log.Warn("presence mirror refresh failed", zap.String("user_id", userID), zap.Error(err))
					}
				}
			case <-done:
				return
			case <-s.Done():
				return
			}
		}
	}()
}

package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/auth"
	"github.com/teamgrid/realtime/internal/domain"
	"github.com/teamgrid/realtime/internal/event"
	"github.com/teamgrid/realtime/internal/observability"
	"github.com/teamgrid/realtime/internal/presence"
	"github.com/teamgrid/realtime/internal/protocol"
	"github.com/teamgrid/realtime/internal/ratelimit"
	"github.com/teamgrid/realtime/internal/room"
)

const eventSource = "gateway"

// Gateway terminates one connection per authenticated user and translates
// inbound protocol frames into broadcasts and domain events. A request while
// the connection is not Active is rejected with AUTH_REQUIRED; malformed or
// out-of-policy requests produce an error frame back to the caller and never
// affect other connections.
type Gateway struct {
	presence *presence.Registry
	rooms    *room.Directory
	limits   *ratelimit.Limiter
	typing   *presence.TypingTracker
	bus      *event.Bus
	verifier auth.Verifier
	mirror   *presence.Mirror
	log      *zap.Logger
	now      func() time.Time

	// roomMu serializes every room mutate-then-broadcast sequence, so all
	// members observe accepted frames in one global order and a join reply's
	// member list is consistent with the user_joined broadcasts around it.
	roomMu sync.Mutex
}

// Options carries the optional collaborators and test seams.
type Options struct {
	TypingExpiry time.Duration
	Mirror       *presence.Mirror
	Clock        func() time.Time
}

func New(
	pres *presence.Registry,
	rooms *room.Directory,
	limits *ratelimit.Limiter,
	bus *event.Bus,
	verifier auth.Verifier,
	log *zap.Logger,
	opts Options,
) *Gateway {
	g := &Gateway{
		presence: pres,
		rooms:    rooms,
		limits:   limits,
		bus:      bus,
		verifier: verifier,
		mirror:   opts.Mirror,
		log:      log,
		now:      opts.Clock,
	}
	if g.now == nil {
		g.now = time.Now
	}
	g.typing = presence.NewTypingTracker(opts.TypingExpiry, g.onTypingExpired)
	return g
}

// HandleFrame dispatches one inbound frame for a session. It is called from
// the session's read loop, so frames from one connection are processed in
// order.
func (g *Gateway) HandleFrame(s *Session, raw []byte) {
	var frame protocol.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.sendError(s, protocol.CodeInvalidData, "malformed frame")
		return
	}

	if frame.Type == protocol.TypeAuthenticate {
		g.handleAuthenticate(s, frame.Data)
		return
	}

	if s.State() != StateActive {
		g.sendError(s, protocol.CodeAuthRequired, "authentication required")
		return
	}

	switch frame.Type {
	case protocol.TypeJoinConversation:
		g.handleJoin(s, frame.Data)
	case protocol.TypeLeaveConversation:
		g.handleLeave(s, frame.Data)
	case protocol.TypeSendMessage:
		g.handleSendMessage(s, frame.Data)
	case protocol.TypeTypingStart:
		g.handleTypingStart(s, frame.Data)
	case protocol.TypeTypingStop:
		g.handleTypingStop(s, frame.Data)
	case protocol.TypeAddReaction:
		g.handleReaction(s, frame.Data, true)
	case protocol.TypeRemoveReaction:
		g.handleReaction(s, frame.Data, false)
	default:
		g.sendError(s, protocol.CodeInvalidData, "unknown frame type")
	}
}

func (g *Gateway) handleAuthenticate(s *Session, data json.RawMessage) {
	// An Active session keeps its identity for life. Allowing a second
	// authenticate would strand the first identity's presence entry, rooms
	// and typing timers under a connection owned by someone else.
	if s.State() == StateActive {
		g.sendError(s, protocol.CodeInvalidData, "already authenticated")
		return
	}
	s.setState(StateAuthenticating)

	var req protocol.AuthenticateData
	if err := json.Unmarshal(data, &req); err != nil || req.UserID == "" || req.Token == "" {
		g.failAuthentication(s, "missing authentication data")
		return
	}
	if err := g.verifier.Verify(req.Token, req.UserID); err != nil {
		g.failAuthentication(s, "authentication failed")
		return
	}

	now := g.now()
	s.setUserID(req.UserID)
	s.connectedAt = now
	s.setState(StateActive)

	// A newer connection from the same user supersedes the old entry.
	if old := g.presence.Register(req.UserID, s, now); old != nil {
		old.Close(CloseSessionReplaced, "session replaced")
	}

	g.send(s, protocol.TypeAuthenticated, protocol.AuthenticatedData{
		UserID:      req.UserID,
		ConnectedAt: now,
	})
	g.broadcastExcept(s.UserID(), protocol.TypeUserOnline, protocol.UserOnlineData{
		UserID:      req.UserID,
		ConnectedAt: now,
	})

	if err := g.mirror.Register(context.Background(), req.UserID); err != nil {
		g.log.Warn("presence mirror register failed", zap.String("user_id", req.UserID), zap.Error(err))
	}

	g.publish(event.New(event.TypeUserOnline, "", event.PresencePayload{UserID: req.UserID}, g.meta(req.UserID)))
	g.log.Info("session authenticated", zap.String("session_id", s.id), zap.String("user_id", req.UserID))
}

// failAuthentication is fatal to the connection: the error frame is written
// directly since the session's write loop may not be running yet, then the
// connection closes with no state retained.
func (g *Gateway) failAuthentication(s *Session, msg string) {
	payload, _ := protocol.Encode(protocol.TypeAuthenticationError, protocol.AuthenticationErrorData{Message: msg})
	s.TrySend(payload)
	s.Close(CloseAuthFailed, "authentication failed")
}

func (g *Gateway) handleJoin(s *Session, data json.RawMessage) {
	if !g.limits.Allow(s.UserID(), "join_conversation") {
		g.sendError(s, protocol.CodeRateLimitExceeded, "too many requests")
		return
	}

	var req protocol.ConversationData
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
		g.sendError(s, protocol.CodeInvalidData, "conversation ID required")
		return
	}

	// Notify existing members before the join lands, then reply with the
	// full post-join member list. One critical section keeps the list
	// consistent with what the broadcasts announced.
	g.roomMu.Lock()
	g.fanOutToRoom(req.ConversationID, s.UserID(), protocol.TypeUserJoined, protocol.UserJoinedData{
		ConversationID: req.ConversationID,
		UserID:         s.UserID(),
		JoinedAt:       g.now(),
	})
	g.rooms.Add(req.ConversationID, s.UserID())
	participants := g.rooms.Members(req.ConversationID)
	g.roomMu.Unlock()

	g.send(s, protocol.TypeConversationJoined, protocol.ConversationJoinedData{
		ConversationID: req.ConversationID,
		Participants:   participants,
	})

	g.publish(event.New(event.TypeMemberJoined, req.ConversationID,
		event.MembershipPayload{ConversationID: req.ConversationID, UserID: s.UserID()},
		g.meta(s.UserID())))
}

func (g *Gateway) handleLeave(s *Session, data json.RawMessage) {
	var req protocol.ConversationData
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
		return
	}

	g.roomMu.Lock()
	g.rooms.Remove(req.ConversationID, s.UserID())
	g.fanOutToRoom(req.ConversationID, "", protocol.TypeUserLeft, protocol.UserLeftData{
		ConversationID: req.ConversationID,
		UserID:         s.UserID(),
		LeftAt:         g.now(),
	})
	g.roomMu.Unlock()

	g.publish(event.New(event.TypeMemberLeft, req.ConversationID,
		event.MembershipPayload{ConversationID: req.ConversationID, UserID: s.UserID()},
		g.meta(s.UserID())))
}

func (g *Gateway) handleSendMessage(s *Session, data json.RawMessage) {
	if !g.limits.Allow(s.UserID(), "send_message") {
		g.sendError(s, protocol.CodeRateLimitExceeded, "too many messages")
		return
	}

	var req protocol.SendMessageData
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" || req.Content == "" {
		g.sendError(s, protocol.CodeInvalidData, "missing required fields")
		return
	}

	msg, err := domain.NewMessage(uuid.NewString(), req.ConversationID, s.UserID(), req.Type, req.Content, g.now())
	if err == domain.ErrMessageTooLarge {
		g.sendError(s, protocol.CodeMessageTooLarge, "message too long")
		return
	}
	if err != nil {
		g.sendError(s, protocol.CodeInvalidData, "missing required fields")
		return
	}

	// Every current member receives the broadcast, sender included.
	g.broadcastToRoom(msg.ConversationID, "", protocol.TypeNewMessage, protocol.NewMessageData{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Type:           msg.Type,
		SenderID:       msg.SenderID,
		CreatedAt:      msg.CreatedAt,
		IsEdited:       false,
	})

	g.publish(event.New(event.TypeMessageSent, msg.ConversationID,
		event.MessagePayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Type:           msg.Type,
			Content:        msg.Content,
		},
		g.meta(s.UserID())))
}

func (g *Gateway) handleTypingStart(s *Session, data json.RawMessage) {
	if !g.limits.Allow(s.UserID(), "typing_start") {
		return
	}

	var req protocol.ConversationData
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
		return
	}

	g.typing.Start(req.ConversationID, s.UserID())
	g.broadcastToRoom(req.ConversationID, s.UserID(), protocol.TypeUserTyping, protocol.TypingData{
		ConversationID: req.ConversationID,
		UserID:         s.UserID(),
	})
	g.publish(event.New(event.TypeTypingStarted, req.ConversationID,
		event.TypingPayload{ConversationID: req.ConversationID, UserID: s.UserID()},
		g.meta(s.UserID())))
}

func (g *Gateway) handleTypingStop(s *Session, data json.RawMessage) {
	var req protocol.ConversationData
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
		return
	}

	g.typing.Stop(req.ConversationID, s.UserID())
	g.broadcastStoppedTyping(req.ConversationID, s.UserID())
}

// onTypingExpired fires from the typing tracker's timer when a typing_start
// was never followed by a stop.
func (g *Gateway) onTypingExpired(conversationID, userID string) {
	g.broadcastStoppedTyping(conversationID, userID)
}

func (g *Gateway) broadcastStoppedTyping(conversationID, userID string) {
	g.broadcastToRoom(conversationID, userID, protocol.TypeUserStoppedTyping, protocol.TypingData{
		ConversationID: conversationID,
		UserID:         userID,
	})
	g.publish(event.New(event.TypeTypingStopped, conversationID,
		event.TypingPayload{ConversationID: conversationID, UserID: userID},
		g.meta(userID)))
}

func (g *Gateway) handleReaction(s *Session, data json.RawMessage, added bool) {
	var req protocol.ReactionData
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID == "" || req.ConversationID == "" || req.Emoji == "" {
		g.sendError(s, protocol.CodeInvalidData, "missing required fields")
		return
	}

	frameType := protocol.TypeReactionRemoved
	eventType := event.TypeReactionRemoved
	broadcast := protocol.ReactionBroadcastData{
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		UserID:         s.UserID(),
		Emoji:          req.Emoji,
	}
	if added {
		frameType = protocol.TypeReactionAdded
		eventType = event.TypeReactionAdded
		now := g.now()
		broadcast.CreatedAt = &now
	}

	g.broadcastToRoom(req.ConversationID, "", frameType, broadcast)
	g.publish(event.New(eventType, req.ConversationID,
		event.ReactionPayload{
			MessageID:      req.MessageID,
			ConversationID: req.ConversationID,
			UserID:         s.UserID(),
			Emoji:          req.Emoji,
		},
		g.meta(s.UserID())))
}

// Disconnect is the universal cancellation signal: one synchronous cleanup
// pass cancels typing timers, removes room memberships (broadcasting
// user_left per room), clears presence and announces user_offline. Partial
// cleanup would leave stale state referencing a dead connection.
func (g *Gateway) Disconnect(s *Session, reason string) {
	if s.UserID() == "" {
		// Never authenticated: no state to clean up.
		return
	}
	userID := s.UserID()
	now := g.now()

	if !g.presence.Remove(userID, s.id) {
		// Superseded: the replacement connection owns the user's rooms
		// and typing timers now.
		return
	}

	for _, conversationID := range g.typing.StopAllForUser(userID) {
		g.broadcastStoppedTyping(conversationID, userID)
	}

	g.roomMu.Lock()
	left := g.rooms.RemoveUser(userID)
	for _, conversationID := range left {
		g.fanOutToRoom(conversationID, "", protocol.TypeUserLeft, protocol.UserLeftData{
			ConversationID: conversationID,
			UserID:         userID,
			LeftAt:         now,
		})
	}
	g.roomMu.Unlock()

	for _, conversationID := range left {
		g.publish(event.New(event.TypeMemberLeft, conversationID,
			event.MembershipPayload{
				ConversationID: conversationID,
				UserID:         userID,
				Reason:         event.ReasonDisconnect,
			},
			g.meta(userID)))
	}

	g.limits.Reset(userID)

	g.broadcastExcept(userID, protocol.TypeUserOffline, protocol.UserOfflineData{
		UserID:         userID,
		DisconnectedAt: now,
		Reason:         reason,
	})
	if err := g.mirror.Unregister(context.Background(), userID); err != nil {
		g.log.Warn("presence mirror unregister failed", zap.String("user_id", userID), zap.Error(err))
	}
	g.publish(event.New(event.TypeUserOffline, "",
		event.PresencePayload{UserID: userID, Reason: reason},
		g.meta(userID)))

	g.log.Info("session disconnected",
		zap.String("session_id", s.id),
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)
}

func (g *Gateway) send(s *Session, frameType string, data any) {
	payload, err := protocol.Encode(frameType, data)
	if err != nil {
		g.log.Error("encode frame", zap.String("frame_type", frameType), zap.Error(err))
		return
	}
	s.TrySend(payload)
}

func (g *Gateway) sendError(s *Session, code, message string) {
	s.TrySend(protocol.EncodeError(code, message))
}

// broadcastToRoom fans a frame out to the room's current member snapshot.
// roomMu is held across the snapshot and the enqueue loop, so concurrently
// accepted frames reach every member in the same order.
func (g *Gateway) broadcastToRoom(conversationID, excludeUserID, frameType string, data any) {
	g.roomMu.Lock()
	defer g.roomMu.Unlock()
	g.fanOutToRoom(conversationID, excludeUserID, frameType, data)
}

// fanOutToRoom encodes one frame and enqueues it for every member but the
// excluded one. Callers must hold roomMu.
func (g *Gateway) fanOutToRoom(conversationID, excludeUserID, frameType string, data any) {
	payload, err := protocol.Encode(frameType, data)
	if err != nil {
		g.log.Error("encode frame", zap.String("frame_type", frameType), zap.Error(err))
		return
	}

	start := time.Now()
	for _, userID := range g.rooms.Members(conversationID) {
		if userID == excludeUserID {
			continue
		}
		if conn, ok := g.presence.Get(userID); ok {
			conn.TrySend(payload)
		}
	}
	observability.BroadcastLatency.Observe(time.Since(start).Seconds())
}

// broadcastExcept sends to every online user but one.
func (g *Gateway) broadcastExcept(excludeUserID, frameType string, data any) {
	payload, err := protocol.Encode(frameType, data)
	if err != nil {
		g.log.Error("encode frame", zap.String("frame_type", frameType), zap.Error(err))
		return
	}
	g.presence.Broadcast(payload, excludeUserID)
}

func (g *Gateway) publish(e event.Event) {
	if err := g.bus.Publish(e); err != nil {
		g.log.Error("publish event", zap.String("event_type", e.Type), zap.Error(err))
	}
}

func (g *Gateway) meta(userID string) event.Metadata {
	return event.Metadata{Source: eventSource, UserID: userID}
}

// Typing exposes the tracker for disconnect tests and the HTTP handler.
func (g *Gateway) Typing() *presence.TypingTracker { return g.typing }

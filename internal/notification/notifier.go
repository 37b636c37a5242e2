package notification

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

// Notification is the envelope handed to the offline delivery pipeline.
type Notification struct {
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Preview        string    `json:"preview"`
	SentAt         time.Time `json:"sentAt"`
}

const previewLimit = 120

func (n Notification) marshal() ([]byte, error) { return json.Marshal(n) }

// Sink delivers notifications to users who have no live connection.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// OnlineChecker reports whether a user currently has a live session.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// ParticipantSource lists the users who belong to a conversation. This must
// be the durable membership, not the live room map: a disconnected user has
// already left every room, and they are exactly who needs a notification.
type ParticipantSource interface {
	Participants(ctx context.Context, conversationID string) ([]string, error)
}

type memberSnapshot interface {
	Members(conversationID string) []string
}

// RoomParticipants adapts the in-memory room directory for deployments
// without a durable participant store. It only covers connected members, so
// offline delivery degrades to a no-op.
type RoomParticipants struct {
	rooms memberSnapshot
}

func NewRoomParticipants(rooms memberSnapshot) *RoomParticipants {
	return &RoomParticipants{rooms: rooms}
}

func (r *RoomParticipants) Participants(ctx context.Context, conversationID string) ([]string, error) {
	return r.rooms.Members(conversationID), nil
}

// Notifier handles message.sent events and fans a notification out to every
// conversation participant who is not connected. The sender never gets one.
type Notifier struct {
	sink         Sink
	online       OnlineChecker
	participants ParticipantSource
	log          *zap.Logger
}

func NewNotifier(sink Sink, online OnlineChecker, participants ParticipantSource, log *zap.Logger) *Notifier {
	return &Notifier{sink: sink, online: online, participants: participants, log: log}
}

func (n *Notifier) Name() string { return "offline_notifier" }

func (n *Notifier) Attach(registry *event.Registry, priority int) {
	registry.Register(event.TypeMessageSent, n, priority)
}

func (n *Notifier) Handle(ctx context.Context, e event.Event) error {
	if e.IsReplay {
		return nil
	}
	data, ok := e.Data.(event.MessagePayload)
	if !ok {
		return nil
	}

	preview := data.Content
	if len([]rune(preview)) > previewLimit {
		preview = string([]rune(preview)[:previewLimit])
	}

	participants, err := n.participants.Participants(ctx, data.ConversationID)
	if err != nil {
		return err
	}

	for _, member := range participants {
		if member == data.SenderID || n.online.IsOnline(member) {
			continue
		}
		err := n.sink.Send(ctx, Notification{
			UserID:         member,
			ConversationID: data.ConversationID,
			SenderID:       data.SenderID,
			Preview:        preview,
			SentAt:         e.Timestamp,
		})
		if err != nil {
			n.log.Error("notification send failed",
				zap.String("user_id", member),
				zap.Error(err),
			)
		}
	}
	return nil
}

package event

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the gateway and the collaborating modules.
const (
	TypeMessageSent     = "message.sent"
	TypeMessageDeleted  = "message.deleted"
	TypeMemberJoined    = "conversation.member.joined"
	TypeMemberLeft      = "conversation.member.left"
	TypeUserOnline      = "presence.user.online"
	TypeUserOffline     = "presence.user.offline"
	TypeTypingStarted   = "typing.started"
	TypeTypingStopped   = "typing.stopped"
	TypeReactionAdded   = "reaction.added"
	TypeReactionRemoved = "reaction.removed"

	TypeGroupCreated     = "group.created"
	TypeGroupUpdated     = "group.updated"
	TypeGroupDeleted     = "group.deleted"
	TypeGroupMemberAdded = "group.member.joined"
	TypeGroupMemberLeft  = "group.member.left"

	TypeCorrelationDetected = "correlation.detected"

	// Wildcard matches every event type on subscription.
	TypeWildcard = "*"
)

// Metadata carries the typed envelope fields every event has, plus one open
// Extra map for data that has no schema yet.
type Metadata struct {
	Version       int               `json:"version"`
	Source        string            `json:"source"`
	UserID        string            `json:"userId,omitempty"`
	TenantID      string            `json:"tenantId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	TargetHandler string            `json:"targetHandler,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Event is immutable once published. AggregateID groups events into one
// strictly ordered log; events without one land in the "global" bucket.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregateId,omitempty"`
	Data        Payload   `json:"data"`
	Metadata    Metadata  `json:"metadata"`
	Timestamp   time.Time `json:"timestamp"`
	IsReplay    bool      `json:"isReplay,omitempty"`
}

// New constructs an event with a fresh id and the current time. Callers that
// need deterministic fields set them on the returned value before publishing.
func New(eventType, aggregateID string, data Payload, meta Metadata) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Data:        data,
		Metadata:    meta,
		Timestamp:   time.Now(),
	}
}

// Payload is the tagged union of event data shapes. Handlers type-switch on
// the concrete variant instead of digging through untyped maps.
type Payload interface {
	payloadKind() string
}

type MessagePayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Type           string `json:"type"`
	Content        string `json:"content"`
}

func (MessagePayload) payloadKind() string { return "message" }

// ReasonDisconnect marks membership removals caused by transport loss rather
// than an explicit leave. Durable membership survives a reconnect.
const ReasonDisconnect = "disconnect"

type MembershipPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Reason         string `json:"reason,omitempty"`
}

func (MembershipPayload) payloadKind() string { return "membership" }

type PresencePayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

func (PresencePayload) payloadKind() string { return "presence" }

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (TypingPayload) payloadKind() string { return "typing" }

type ReactionPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Emoji          string `json:"emoji"`
}

func (ReactionPayload) payloadKind() string { return "reaction" }

type GroupPayload struct {
	GroupID   string            `json:"groupId"`
	GroupName string            `json:"groupName,omitempty"`
	MemberID  string            `json:"memberId,omitempty"`
	RoleID    string            `json:"roleId,omitempty"`
	Changes   map[string]string `json:"changes,omitempty"`
}

func (GroupPayload) payloadKind() string { return "group" }

type CorrelationPayload struct {
	CorrelationID string   `json:"correlationId"`
	Kind          string   `json:"kind"`
	EventIDs      []string `json:"eventIds"`
	Confidence    float64  `json:"confidence"`
}

func (CorrelationPayload) payloadKind() string { return "correlation" }

// RawPayload carries data from external modules whose schema this core does
// not know. It is the open extension variant of the union.
type RawPayload map[string]any

func (RawPayload) payloadKind() string { return "raw" }

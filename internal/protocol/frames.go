package protocol

import (
	"encoding/json"
	"time"
)

// Frame types accepted from clients.
const (
	TypeAuthenticate      = "authenticate"
	TypeJoinConversation  = "join_conversation"
	TypeLeaveConversation = "leave_conversation"
	TypeSendMessage       = "send_message"
	TypeTypingStart       = "typing_start"
	TypeTypingStop        = "typing_stop"
	TypeAddReaction       = "add_reaction"
	TypeRemoveReaction    = "remove_reaction"
)

// Frame types sent to clients.
const (
	TypeAuthenticated       = "authenticated"
	TypeAuthenticationError = "authentication_error"
	TypeConversationJoined  = "conversation_joined"
	TypeUserJoined          = "user_joined"
	TypeUserLeft            = "user_left"
	TypeNewMessage          = "new_message"
	TypeUserTyping          = "user_typing"
	TypeUserStoppedTyping   = "user_stopped_typing"
	TypeReactionAdded       = "reaction_added"
	TypeReactionRemoved     = "reaction_removed"
	TypeUserOnline          = "user_online"
	TypeUserOffline         = "user_offline"
	TypeError               = "error"
)

// Error codes carried by error frames.
const (
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInvalidData       = "INVALID_DATA"
	CodeMessageTooLarge   = "MESSAGE_TOO_LARGE"
)

// ClientFrame is the envelope for every inbound frame.
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type AuthenticateData struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type ConversationData struct {
	ConversationID string `json:"conversationId"`
}

type SendMessageData struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}

type ReactionData struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Emoji          string `json:"emoji"`
}

// ServerFrame is the envelope for every outbound frame.
type ServerFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type AuthenticatedData struct {
	UserID      string    `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type AuthenticationErrorData struct {
	Message string `json:"message"`
}

type ConversationJoinedData struct {
	ConversationID string   `json:"conversationId"`
	Participants   []string `json:"participants"`
}

type UserJoinedData struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	JoinedAt       time.Time `json:"joinedAt"`
}

type UserLeftData struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	LeftAt         time.Time `json:"leftAt"`
}

type NewMessageData struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	SenderID       string    `json:"senderId"`
	CreatedAt      time.Time `json:"createdAt"`
	IsEdited       bool      `json:"isEdited"`
}

type TypingData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type ReactionBroadcastData struct {
	MessageID      string     `json:"messageId"`
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	Emoji          string     `json:"emoji"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

type UserOnlineData struct {
	UserID      string    `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type UserOfflineData struct {
	UserID         string    `json:"userId"`
	DisconnectedAt time.Time `json:"disconnectedAt"`
	Reason         string    `json:"reason"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode marshals a server frame for the wire. Marshaling a frame built from
// the types above cannot fail; errors only arise from caller-supplied Data.
func Encode(frameType string, data any) ([]byte, error) {
	return json.Marshal(ServerFrame{Type: frameType, Data: data})
}

func EncodeError(code, message string) []byte {
	payload, _ := json.Marshal(ServerFrame{
		Type: TypeError,
		Data: ErrorData{Code: code, Message: message},
	})
	return payload
}

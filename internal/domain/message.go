package domain

import "time"

const MaxMessageContent = 2000

// Message Invariants:
// 1. Immutability: a message never changes after broadcast. Edits and deletes
//    are modeled as new events, not in-place mutation.
// 2. Event Consistency: every accepted send emits a message.sent event.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Type           string
	Content        string
	CreatedAt      time.Time
	IsEdited       bool
}

func NewMessage(
	id string,
	conversationID string,
	senderID string,
	msgType string,
	content string,
	now time.Time,
) (*Message, error) {

	if id == "" || conversationID == "" || senderID == "" || content == "" {
		return nil, ErrInvalidMessage
	}

	if len([]rune(content)) > MaxMessageContent {
		return nil, ErrMessageTooLarge
	}

	if msgType == "" {
		msgType = "TEXT"
	}

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           msgType,
		Content:        content,
		CreatedAt:      now,
	}, nil
}

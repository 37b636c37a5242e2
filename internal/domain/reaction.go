package domain

import "time"

// Reaction is an emoji attached to a message by a user. A (message, user,
// emoji) triple is unique; adding one twice is a no-op at the store level.
type Reaction struct {
	MessageID      string
	ConversationID string
	UserID         string
	Emoji          string
	CreatedAt      time.Time
}

func NewReaction(messageID, conversationID, userID, emoji string, now time.Time) (*Reaction, error) {
	if messageID == "" || conversationID == "" || userID == "" || emoji == "" {
		return nil, ErrInvalidInput
	}
	return &Reaction{
		MessageID:      messageID,
		ConversationID: conversationID,
		UserID:         userID,
		Emoji:          emoji,
		CreatedAt:      now,
	}, nil
}

package repository

import (
	"context"

	"github.com/teamgrid/realtime/internal/domain"
)

// MessageRepository persists chat messages, their reactions and the durable
// participant set of each conversation. Participants outlive connections:
// a disconnect does not remove one, only an explicit leave does.
type MessageRepository interface {
	SaveMessage(ctx context.Context, m domain.Message) error
	SaveReaction(ctx context.Context, r domain.Reaction) error
	DeleteReaction(ctx context.Context, r domain.Reaction) error
	MessagesByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	SaveParticipant(ctx context.Context, conversationID, userID string) error
	DeleteParticipant(ctx context.Context, conversationID, userID string) error
	Participants(ctx context.Context, conversationID string) ([]string, error)
}

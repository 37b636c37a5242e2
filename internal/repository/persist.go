package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/domain"
	"github.com/teamgrid/realtime/internal/event"
)

// Persister is the event handler that writes message and reaction events
// through to durable storage. It ignores replayed events so rebuilds do not
// double-write.
type Persister struct {
	repo MessageRepository
	log  *zap.Logger
}

func NewPersister(repo MessageRepository, log *zap.Logger) *Persister {
	return &Persister{repo: repo, log: log}
}

func (p *Persister) Name() string { return "message_persister" }

// Attach registers the persister for the event types it stores.
func (p *Persister) Attach(registry *event.Registry, priority int) {
	registry.Register(event.TypeMessageSent, p, priority)
	registry.Register(event.TypeReactionAdded, p, priority)
	registry.Register(event.TypeReactionRemoved, p, priority)
	registry.Register(event.TypeMemberJoined, p, priority)
	registry.Register(event.TypeMemberLeft, p, priority)
}

func (p *Persister) Handle(ctx context.Context, e event.Event) error {
	if e.IsReplay {
		return nil
	}
	switch data := e.Data.(type) {
	case event.MessagePayload:
		return p.repo.SaveMessage(ctx, domain.Message{
			ID:             data.MessageID,
			ConversationID: data.ConversationID,
			SenderID:       data.SenderID,
			Type:           data.Type,
			Content:        data.Content,
			CreatedAt:      e.Timestamp,
		})
	case event.MembershipPayload:
		if e.Type == event.TypeMemberJoined {
			return p.repo.SaveParticipant(ctx, data.ConversationID, data.UserID)
		}
		if data.Reason == event.ReasonDisconnect {
			// Durable membership survives the connection.
			return nil
		}
		return p.repo.DeleteParticipant(ctx, data.ConversationID, data.UserID)
	case event.ReactionPayload:
		r := domain.Reaction{
			MessageID:      data.MessageID,
			ConversationID: data.ConversationID,
			UserID:         data.UserID,
			Emoji:          data.Emoji,
			CreatedAt:      e.Timestamp,
		}
		if e.Type == event.TypeReactionRemoved {
			return p.repo.DeleteReaction(ctx, r)
		}
		return p.repo.SaveReaction(ctx, r)
	default:
		p.log.Debug("persister skipping unsupported payload", zap.String("event_type", e.Type))
		return nil
	}
}

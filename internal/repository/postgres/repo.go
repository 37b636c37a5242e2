package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/teamgrid/realtime/internal/domain"
)

func NewDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	return db, db.PingContext(ctx)
}

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) SaveMessage(ctx context.Context, m domain.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, type, content, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.ConversationID, m.SenderID, m.Type, m.Content, m.CreatedAt,
	)
	return err
}

func (r *MessageRepository) SaveReaction(ctx context.Context, re domain.Reaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		 VALUES ($1,$2,$3,$4)`,
		re.MessageID, re.UserID, re.Emoji, re.CreatedAt,
	)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return nil
		}
		return err
	}
	return nil
}

func (r *MessageRepository) DeleteReaction(ctx context.Context, re domain.Reaction) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`,
		re.MessageID, re.UserID, re.Emoji,
	)
	return err
}

func (r *MessageRepository) SaveParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		 VALUES ($1,$2,NOW())
		 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		conversationID, userID,
	)
	return err
}

func (r *MessageRepository) DeleteParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, userID,
	)
	return err
}

func (r *MessageRepository) Participants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id=$1`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

func (r *MessageRepository) MessagesByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, type, content, created_at, is_edited
		 FROM messages WHERE conversation_id=$1
		 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Type, &m.Content, &m.CreatedAt, &m.IsEdited); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

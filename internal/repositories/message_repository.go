package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"skillswap-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error
	MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error)
	SoftDeleteMessage(ctx context.Context, messageID string) error
	CountUnreadMessages(ctx context.Context, receiverID string) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message with its delivery state stamped by the caller.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.MessageType == "" {
		msg.MessageType = models.MessageTypeText
	}
	var stored models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, message_type, is_delivered, delivered_at, skill_context)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, conversation_id, sender_id, receiver_id, content, message_type, is_read, read_at, is_delivered, delivered_at, is_deleted, skill_context, created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Content, msg.MessageType, msg.IsDelivered, msg.DeliveredAt, msg.SkillContext).
		StructScan(&stored)
	return stored, err
}

// ListConversationMessages returns visible messages ordered by creation time.
func (r *MessageRepo) ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender_id, receiver_id, content, message_type, is_read, read_at, is_delivered, delivered_at, is_deleted, skill_context, created_at
        FROM messages
        WHERE conversation_id=$1 AND is_deleted = FALSE
        ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, conversationID, limit, offset)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, conversation_id, sender_id, receiver_id, content, message_type, is_read, read_at, is_delivered, delivered_at, is_deleted, skill_context, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkMessageRead sets the read flag and timestamp.
func (r *MessageRepo) MarkMessageRead(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE, read_at = $2 WHERE id=$1`, messageID, time.Now().UTC())
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkConversationRead marks every unread message for the receiver in the
// conversation and returns how many rows changed.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE, read_at = $3
        WHERE conversation_id=$1 AND receiver_id=$2 AND is_read = FALSE`, conversationID, receiverID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDeleteMessage hides a message without removing the row.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// CountUnreadMessages counts unread, visible messages addressed to the user.
func (r *MessageRepo) CountUnreadMessages(ctx context.Context, receiverID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND is_read = FALSE AND is_deleted = FALSE`, receiverID)
	return count, err
}

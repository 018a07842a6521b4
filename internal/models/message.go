package models

import "time"

// Message types accepted on send.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// ValidMessageType reports whether t is an accepted message type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// Message represents a persisted conversation message. Messages are never
// hard-deleted; IsDeleted hides them from listings and unread counts.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	SenderID       string     `db:"sender_id" json:"sender_id"`
	ReceiverID     string     `db:"receiver_id" json:"receiver_id"`
	Content        string     `db:"content" json:"content"`
	MessageType    string     `db:"message_type" json:"message_type"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	IsDelivered    bool       `db:"is_delivered" json:"is_delivered"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	IsDeleted      bool       `db:"is_deleted" json:"is_deleted"`
	SkillContext   *string    `db:"skill_context" json:"skill_context,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// ResolvedMessage is the broadcast form of a message with sender, receiver
// and skill context expanded for clients.
type ResolvedMessage struct {
	Message
	Sender   *UserRef  `json:"sender,omitempty"`
	Receiver *UserRef  `json:"receiver,omitempty"`
	Skill    *SkillRef `json:"skill,omitempty"`
}

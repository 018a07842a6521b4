package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Notification types mirror the marketplace events that produce them.
const (
	NotificationTypeMessage        = "message"
	NotificationTypeSkillRequest   = "skill_request"
	NotificationTypeSkillAccepted  = "skill_accepted"
	NotificationTypeSkillRejected  = "skill_rejected"
	NotificationTypeSwapCompleted  = "swap_completed"
	NotificationTypeReviewReceived = "review_received"
	NotificationTypeSystem         = "system"
)

// ValidNotificationType reports whether t is a known notification type.
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationTypeMessage, NotificationTypeSkillRequest,
		NotificationTypeSkillAccepted, NotificationTypeSkillRejected,
		NotificationTypeSwapCompleted, NotificationTypeReviewReceived,
		NotificationTypeSystem:
		return true
	}
	return false
}

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is a persisted user notification. Unlike messages,
// notifications may be hard-deleted.
type Notification struct {
	ID          string         `db:"id" json:"id"`
	RecipientID string         `db:"recipient_id" json:"recipient_id"`
	SenderID    *string        `db:"sender_id" json:"sender_id,omitempty"`
	Type        string         `db:"type" json:"type"`
	Title       string         `db:"title" json:"title"`
	Message     string         `db:"message" json:"message"`
	Link        *string        `db:"link" json:"link,omitempty"`
	Data        types.JSONText `db:"data" json:"data,omitempty"`
	IsRead      bool           `db:"is_read" json:"is_read"`
	ReadAt      *time.Time     `db:"read_at" json:"read_at,omitempty"`
	Priority    string         `db:"priority" json:"priority"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// ResolvedNotification carries the expanded sender for clients.
type ResolvedNotification struct {
	Notification
	Sender *UserRef `json:"sender,omitempty"`
}

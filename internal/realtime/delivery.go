package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx/types"

	"skillswap-service/internal/models"
	"skillswap-service/internal/observability"
	"skillswap-service/internal/repositories"
)

// MessageDraft is an outbound message before persistence.
type MessageDraft struct {
	ConversationID string  `json:"conversationId"`
	SenderID       string  `json:"sender" binding:"required"`
	ReceiverID     string  `json:"receiver" binding:"required"`
	Content        string  `json:"content" binding:"required"`
	MessageType    string  `json:"messageType"`
	SkillContext   *string `json:"skillContext"`
}

// NotificationDraft is an outbound notification before persistence.
type NotificationDraft struct {
	RecipientID string          `json:"recipient" binding:"required"`
	SenderID    *string         `json:"sender"`
	Type        string          `json:"type" binding:"required"`
	Title       string          `json:"title" binding:"required"`
	Message     string          `json:"message" binding:"required"`
	Link        *string         `json:"link"`
	Data        json.RawMessage `json:"data"`
	Priority    string          `json:"priority"`
}

// Engine is the single delivery path shared by the socket layer and the REST
// handlers. Persistence is the durability boundary: once a record is stored
// the operation has succeeded, and the realtime push on top of it is
// best-effort.
type Engine struct {
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	users         repositories.UserRepository
	skills        repositories.SkillRepository
	presence      *PresenceRegistry
	rooms         *RoomManager
	unread        *UnreadReconciler
}

// NewEngine constructs the delivery engine.
func NewEngine(
	messages repositories.MessageRepository,
	notifications repositories.NotificationRepository,
	users repositories.UserRepository,
	skills repositories.SkillRepository,
	presence *PresenceRegistry,
	rooms *RoomManager,
	unread *UnreadReconciler,
) *Engine {
	return &Engine{
		messages:      messages,
		notifications: notifications,
		users:         users,
		skills:        skills,
		presence:      presence,
		rooms:         rooms,
		unread:        unread,
	}
}

// DeliverMessage validates, persists and fans out a message. The delivered
// flag is stamped from the receiver's presence at send time. Both sender and
// receiver existence are checked before anything is written, and both
// failures are reported together.
func (e *Engine) DeliverMessage(ctx context.Context, draft MessageDraft) (models.ResolvedMessage, error) {
	var bad []string
	if draft.ConversationID == "" {
		bad = append(bad, "conversationId")
	}
	if draft.SenderID == "" {
		bad = append(bad, "sender")
	}
	if draft.ReceiverID == "" {
		bad = append(bad, "receiver")
	}
	if draft.Content == "" {
		bad = append(bad, "content")
	}
	if draft.MessageType != "" && !models.ValidMessageType(draft.MessageType) {
		bad = append(bad, "messageType")
	}
	if len(bad) > 0 {
		return models.ResolvedMessage{}, &ValidationError{Fields: bad}
	}

	var missing []string
	sender, err := e.users.GetUser(ctx, draft.SenderID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		missing = append(missing, "sender")
	} else if err != nil {
		return models.ResolvedMessage{}, err
	}
	receiver, err := e.users.GetUser(ctx, draft.ReceiverID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		missing = append(missing, "receiver")
	} else if err != nil {
		return models.ResolvedMessage{}, err
	}
	if len(missing) > 0 {
		return models.ResolvedMessage{}, &NotFoundError{Resource: "user", Missing: missing}
	}

	msg := models.Message{
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		ReceiverID:     draft.ReceiverID,
		Content:        draft.Content,
		MessageType:    draft.MessageType,
		SkillContext:   draft.SkillContext,
	}
	if e.presence.IsOnline(draft.ReceiverID) {
		now := time.Now().UTC()
		msg.IsDelivered = true
		msg.DeliveredAt = &now
	}

	stored, err := e.messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.ResolvedMessage{}, err
	}

	resolved := models.ResolvedMessage{Message: stored, Sender: sender.Ref(), Receiver: receiver.Ref()}
	if stored.SkillContext != nil {
		skill, err := e.skills.GetSkill(ctx, *stored.SkillContext)
		if err != nil {
			log.Printf("skill context lookup failed skill=%s: %v", *stored.SkillContext, err)
		} else {
			resolved.Skill = skill.Ref()
		}
	}

	e.rooms.Broadcast(ConversationRoom(stored.ConversationID), "message:received", resolved)
	observability.IncDelivery("message", deliveryOutcome(stored.IsDelivered))

	if e.presence.IsOnline(stored.ReceiverID) {
		e.rooms.Broadcast(NotificationRoom(stored.ReceiverID), "message:new", map[string]any{
			"conversationId": stored.ConversationID,
			"message":        resolved,
		})
		e.unread.PushMessageCount(ctx, stored.ReceiverID)
	}

	return resolved, nil
}

// DeliverNotification validates, persists and best-effort pushes a
// notification. The record is stored before any push is attempted; a push
// failure is logged and never rolls back or fails the operation. The second
// return value reports whether realtime delivery happened.
func (e *Engine) DeliverNotification(ctx context.Context, draft NotificationDraft) (models.ResolvedNotification, bool, error) {
	var bad []string
	if draft.RecipientID == "" {
		bad = append(bad, "recipient")
	}
	if draft.Type == "" || !models.ValidNotificationType(draft.Type) {
		bad = append(bad, "type")
	}
	if draft.Title == "" {
		bad = append(bad, "title")
	}
	if draft.Message == "" {
		bad = append(bad, "message")
	}
	if draft.Priority != "" && !models.ValidPriority(draft.Priority) {
		bad = append(bad, "priority")
	}
	if len(bad) > 0 {
		return models.ResolvedNotification{}, false, &ValidationError{Fields: bad}
	}

	stored, err := e.notifications.CreateNotification(ctx, models.Notification{
		RecipientID: draft.RecipientID,
		SenderID:    draft.SenderID,
		Type:        draft.Type,
		Title:       draft.Title,
		Message:     draft.Message,
		Link:        draft.Link,
		Data:        types.JSONText(draft.Data),
		Priority:    draft.Priority,
	})
	if err != nil {
		return models.ResolvedNotification{}, false, err
	}

	delivered := e.push(ctx, stored)
	return e.resolveNotification(ctx, stored), delivered, nil
}

// DeliverNotifications persists a batch in one store call, then pushes each
// item best-effort, continuing past individual failures. Only the batched
// persistence can fail the call.
func (e *Engine) DeliverNotifications(ctx context.Context, drafts []NotificationDraft) ([]models.ResolvedNotification, error) {
	rows := make([]models.Notification, 0, len(drafts))
	for i, draft := range drafts {
		if draft.RecipientID == "" || draft.Type == "" || !models.ValidNotificationType(draft.Type) || draft.Title == "" || draft.Message == "" {
			return nil, &ValidationError{Fields: []string{"notifications[" + strconv.Itoa(i) + "]"}}
		}
		rows = append(rows, models.Notification{
			RecipientID: draft.RecipientID,
			SenderID:    draft.SenderID,
			Type:        draft.Type,
			Title:       draft.Title,
			Message:     draft.Message,
			Link:        draft.Link,
			Data:        types.JSONText(draft.Data),
			Priority:    draft.Priority,
		})
	}

	stored, err := e.notifications.CreateNotifications(ctx, rows)
	if err != nil {
		return nil, err
	}

	resolved := make([]models.ResolvedNotification, 0, len(stored))
	for _, n := range stored {
		e.push(ctx, n)
		resolved = append(resolved, e.resolveNotification(ctx, n))
	}
	return resolved, nil
}

// push broadcasts a stored notification to the recipient's private room and
// reconciles their unread count. Returns whether at least one live connection
// actually received the push.
func (e *Engine) push(ctx context.Context, n models.Notification) bool {
	delivered := false
	if e.presence.IsOnline(n.RecipientID) {
		sent := e.rooms.Broadcast(NotificationRoom(n.RecipientID), "notification:new", e.resolveNotification(ctx, n))
		delivered = sent > 0
		e.unread.PushNotificationCount(ctx, n.RecipientID)
	}
	observability.IncDelivery("notification", deliveryOutcome(delivered))
	return delivered
}

func (e *Engine) resolveNotification(ctx context.Context, n models.Notification) models.ResolvedNotification {
	resolved := models.ResolvedNotification{Notification: n}
	if n.SenderID != nil {
		sender, err := e.users.GetUser(ctx, *n.SenderID)
		if err != nil {
			log.Printf("notification sender lookup failed user=%s: %v", *n.SenderID, err)
		} else {
			resolved.Sender = sender.Ref()
		}
	}
	return resolved
}

func deliveryOutcome(delivered bool) string {
	if delivered {
		return "delivered"
	}
	return "stored"
}

package realtime

import (
	"context"
	"log"

	"skillswap-service/internal/repositories"
)

// UnreadCounts is the authoritative pair of unread totals for a user. It is
// always recomputed from the store, never cached, so REST and socket
// mutations can interleave without drifting a counter.
type UnreadCounts struct {
	Messages      int `json:"messages"`
	Notifications int `json:"notifications"`
}

// UnreadReconciler recomputes unread counts from persisted state and pushes
// them to every live connection of a user through the private room. A count
// query failure is logged and the push skipped; the client keeps its last
// known value and self-heals on the next request or reconnect.
type UnreadReconciler struct {
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	rooms         *RoomManager
}

// NewUnreadReconciler constructs an UnreadReconciler.
func NewUnreadReconciler(messages repositories.MessageRepository, notifications repositories.NotificationRepository, rooms *RoomManager) *UnreadReconciler {
	return &UnreadReconciler{messages: messages, notifications: notifications, rooms: rooms}
}

// Recompute issues both count queries for the user.
func (r *UnreadReconciler) Recompute(ctx context.Context, userID string) (UnreadCounts, error) {
	msgCount, err := r.messages.CountUnreadMessages(ctx, userID)
	if err != nil {
		return UnreadCounts{}, err
	}
	notifCount, err := r.notifications.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return UnreadCounts{}, err
	}
	return UnreadCounts{Messages: msgCount, Notifications: notifCount}, nil
}

// PushMessageCount recomputes the user's unread message total and emits
// unread:update to their private room.
func (r *UnreadReconciler) PushMessageCount(ctx context.Context, userID string) {
	count, err := r.messages.CountUnreadMessages(ctx, userID)
	if err != nil {
		log.Printf("unread message recount failed user=%s: %v", userID, err)
		return
	}
	r.rooms.Broadcast(NotificationRoom(userID), "unread:update", map[string]int{"messages": count})
}

// PushNotificationCount recomputes the user's unread notification total and
// emits notification:unread-count to their private room.
func (r *UnreadReconciler) PushNotificationCount(ctx context.Context, userID string) {
	count, err := r.notifications.CountUnreadNotifications(ctx, userID)
	if err != nil {
		log.Printf("unread notification recount failed user=%s: %v", userID, err)
		return
	}
	r.rooms.Broadcast(NotificationRoom(userID), "notification:unread-count", map[string]int{"count": count})
}

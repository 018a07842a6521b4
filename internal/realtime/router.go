package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"skillswap-service/internal/observability"
	"skillswap-service/internal/repositories"
)

// Event is one decoded inbound client frame.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Inbound event names.
const (
	EventUserJoin          = "user:join"
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessageRead       = "message:read"
	EventConversationRead  = "conversation:read"
	EventNotifMarkRead     = "notification:mark-read"
	EventNotifMarkAllRead  = "notification:mark-all-read"
	EventNotifDelete       = "notification:delete"
	EventNotifUnreadCount  = "notification:get-unread-count"
	EventUsersOnline       = "users:online"
)

type connState int

const (
	stateUnjoined connState = iota
	stateJoined
	stateClosed
)

type session struct {
	conn   Conn
	userID string
	state  connState
}

// Router owns the per-connection state machine: a connection starts unjoined,
// becomes joined after a valid user:join, and is closed on transport
// disconnect. Unjoined connections have every event except user:join silently
// ignored; closed connections process nothing. Validation failures are
// answered with a scoped error event to the originating connection only.
type Router struct {
	mu       sync.Mutex
	sessions map[string]*session

	presence      *PresenceRegistry
	rooms         *RoomManager
	engine        *Engine
	unread        *UnreadReconciler
	users         repositories.UserRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
}

// NewRouter constructs the event router.
func NewRouter(
	presence *PresenceRegistry,
	rooms *RoomManager,
	engine *Engine,
	unread *UnreadReconciler,
	users repositories.UserRepository,
	messages repositories.MessageRepository,
	notifications repositories.NotificationRepository,
) *Router {
	return &Router{
		sessions:      make(map[string]*session),
		presence:      presence,
		rooms:         rooms,
		engine:        engine,
		unread:        unread,
		users:         users,
		messages:      messages,
		notifications: notifications,
	}
}

// Connect registers a fresh, unjoined connection.
func (r *Router) Connect(conn Conn) {
	r.mu.Lock()
	r.sessions[conn.ID()] = &session{conn: conn, state: stateUnjoined}
	r.mu.Unlock()
	r.rooms.Register(conn)
}

// Dispatch routes one inbound event for a connection. Events from a single
// connection arrive from its read loop, so they are handled in FIFO order.
func (r *Router) Dispatch(ctx context.Context, connID string, evt Event) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	r.mu.Unlock()
	if !ok || sess.state == stateClosed {
		return
	}

	observability.IncWSEvent("realtime", evt.Name)

	if sess.state == stateUnjoined {
		if evt.Name == EventUserJoin {
			r.handleUserJoin(ctx, sess, evt.Data)
		}
		// Anything else before join is untrusted client ordering; drop it.
		return
	}

	switch evt.Name {
	case EventUserJoin:
		r.handleUserJoin(ctx, sess, evt.Data)
	case EventConversationJoin:
		if id, ok := r.scalar(sess, evt.Data, "conversationId"); ok {
			r.rooms.JoinRoom(sess.conn.ID(), ConversationRoom(id))
		}
	case EventConversationLeave:
		if id, ok := r.scalar(sess, evt.Data, "conversationId"); ok {
			r.rooms.LeaveRoom(sess.conn.ID(), ConversationRoom(id))
		}
	case EventMessageSend:
		r.handleMessageSend(ctx, sess, evt.Data)
	case EventTypingStart:
		r.handleTyping(sess, evt.Data, true)
	case EventTypingStop:
		r.handleTyping(sess, evt.Data, false)
	case EventMessageRead:
		r.handleMessageRead(ctx, sess, evt.Data)
	case EventConversationRead:
		r.handleConversationRead(ctx, sess, evt.Data)
	case EventNotifMarkRead:
		r.handleNotificationMarkRead(ctx, sess, evt.Data)
	case EventNotifMarkAllRead:
		r.handleNotificationMarkAllRead(ctx, sess, evt.Data)
	case EventNotifDelete:
		r.handleNotificationDelete(ctx, sess, evt.Data)
	case EventNotifUnreadCount:
		r.handleNotificationUnreadCount(ctx, sess, evt.Data)
	case EventUsersOnline:
		r.emit(sess, "users:online-list", r.presence.OnlineUsers())
	default:
		r.emitError(sess, "error", "unknown event: "+evt.Name)
	}
}

// Disconnect moves the connection to its terminal state, tears down room
// membership and presence, and broadcasts the offline transition when the
// user's last connection is gone.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	if ok {
		sess.state = stateClosed
		delete(r.sessions, connID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.rooms.Unregister(connID)

	userID, last := r.presence.Leave(connID)
	if userID == "" || !last {
		return
	}
	if err := r.users.SetOffline(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("set offline failed user=%s: %v", userID, err)
	}
	r.rooms.BroadcastAll("user:offline", map[string]string{"userId": userID})
}

func (r *Router) handleUserJoin(ctx context.Context, sess *session, data json.RawMessage) {
	userID, ok := r.scalar(sess, data, "userId")
	if !ok {
		return
	}

	// A joined connection re-identifying as another user must release its
	// old binding first, or the old user's presence set keeps this
	// connection forever.
	if sess.userID != "" && sess.userID != userID {
		r.releaseIdentity(ctx, sess)
	}

	first := r.presence.Join(userID, sess.conn.ID())
	sess.userID = userID
	sess.state = stateJoined
	r.rooms.JoinRoom(sess.conn.ID(), NotificationRoom(userID))

	if first {
		if err := r.users.SetOnline(ctx, userID); err != nil {
			log.Printf("set online failed user=%s: %v", userID, err)
		}
		r.rooms.BroadcastAll("user:online", map[string]string{"userId": userID})
	}

	counts, err := r.unread.Recompute(ctx, userID)
	if err != nil {
		log.Printf("unread recount on join failed user=%s: %v", userID, err)
		return
	}
	r.emit(sess, "unread:counts", counts)
}

// releaseIdentity detaches a connection from the user it is currently bound
// to: private room membership, presence, and the offline transition when
// this was the user's last connection.
func (r *Router) releaseIdentity(ctx context.Context, sess *session) {
	old := sess.userID
	r.rooms.LeaveRoom(sess.conn.ID(), NotificationRoom(old))

	userID, last := r.presence.Leave(sess.conn.ID())
	if userID == "" || !last {
		return
	}
	if err := r.users.SetOffline(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("set offline failed user=%s: %v", userID, err)
	}
	r.rooms.BroadcastAll("user:offline", map[string]string{"userId": userID})
}

func (r *Router) handleMessageSend(ctx context.Context, sess *session, data json.RawMessage) {
	var draft MessageDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		r.emitError(sess, "message:error", "malformed message payload")
		return
	}

	if _, err := r.engine.DeliverMessage(ctx, draft); err != nil {
		var vErr *ValidationError
		var nfErr *NotFoundError
		switch {
		case errors.As(err, &vErr):
			r.emitError(sess, "message:error", vErr.Error())
		case errors.As(err, &nfErr):
			r.emitError(sess, "message:error", nfErr.Error())
		default:
			log.Printf("message delivery failed conversation=%s: %v", draft.ConversationID, err)
			r.emitError(sess, "message:error", "failed to send message")
		}
	}
}

func (r *Router) handleTyping(sess *session, data json.RawMessage, typing bool) {
	var payload struct {
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" || payload.UserID == "" {
		r.emitError(sess, "message:error", "malformed typing payload")
		return
	}
	r.rooms.BroadcastExcept(ConversationRoom(payload.ConversationID), sess.conn.ID(), "typing:user", map[string]any{
		"userId":   payload.UserID,
		"isTyping": typing,
	})
}

func (r *Router) handleMessageRead(ctx context.Context, sess *session, data json.RawMessage) {
	var payload struct {
		MessageID      string `json:"messageId"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID == "" || payload.ConversationID == "" {
		r.emitError(sess, "message:error", "malformed read payload")
		return
	}

	if err := r.messages.MarkMessageRead(ctx, payload.MessageID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			r.emitError(sess, "message:error", "message not found")
			return
		}
		log.Printf("mark message read failed message=%s: %v", payload.MessageID, err)
		return
	}
	r.rooms.Broadcast(ConversationRoom(payload.ConversationID), "message:read-receipt", map[string]string{
		"messageId": payload.MessageID,
	})
}

func (r *Router) handleConversationRead(ctx context.Context, sess *session, data json.RawMessage) {
	var payload struct {
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" || payload.UserID == "" {
		r.emitError(sess, "message:error", "malformed conversation read payload")
		return
	}

	if _, err := r.messages.MarkConversationRead(ctx, payload.ConversationID, payload.UserID); err != nil {
		log.Printf("mark conversation read failed conversation=%s: %v", payload.ConversationID, err)
		return
	}

	count, err := r.messages.CountUnreadMessages(ctx, payload.UserID)
	if err != nil {
		log.Printf("unread message recount failed user=%s: %v", payload.UserID, err)
		return
	}
	r.emit(sess, "unread:update", map[string]int{"messages": count})
}

func (r *Router) handleNotificationMarkRead(ctx context.Context, sess *session, data json.RawMessage) {
	var payload struct {
		NotificationID string `json:"notificationId"`
		UserID         string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.NotificationID == "" || payload.UserID == "" {
		r.emitError(sess, "notification:error", "malformed mark-read payload")
		return
	}

	if _, err := r.notifications.MarkNotificationRead(ctx, payload.NotificationID); err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			r.emitError(sess, "notification:error", "notification not found")
			return
		}
		log.Printf("mark notification read failed notification=%s: %v", payload.NotificationID, err)
		r.emitError(sess, "notification:error", "failed to mark notification as read")
		return
	}

	r.emit(sess, "notification:read-confirm", map[string]any{
		"notificationId": payload.NotificationID,
		"success":        true,
	})
	r.unread.PushNotificationCount(ctx, payload.UserID)
}

func (r *Router) handleNotificationMarkAllRead(ctx context.Context, sess *session, data json.RawMessage) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" {
		r.emitError(sess, "notification:error", "malformed mark-all-read payload")
		return
	}

	modified, err := r.notifications.MarkAllNotificationsRead(ctx, payload.UserID)
	if err != nil {
		log.Printf("mark all notifications read failed user=%s: %v", payload.UserID, err)
		r.emitError(sess, "notification:error", "failed to mark all notifications as read")
		return
	}

	r.emit(sess, "notification:all-read-confirm", map[string]any{
		"success":       true,
		"modifiedCount": modified,
	})
	r.rooms.Broadcast(NotificationRoom(payload.UserID), "notification:unread-count", map[string]int{"count": 0})
}

func (r *Router) handleNotificationDelete(ctx context.Context, sess *session, data json.RawMessage) {
	var payload struct {
		NotificationID string `json:"notificationId"`
		UserID         string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.NotificationID == "" || payload.UserID == "" {
		r.emitError(sess, "notification:error", "malformed delete payload")
		return
	}

	deleted, err := r.notifications.DeleteNotification(ctx, payload.NotificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			r.emitError(sess, "notification:error", "notification not found")
			return
		}
		log.Printf("delete notification failed notification=%s: %v", payload.NotificationID, err)
		r.emitError(sess, "notification:error", "failed to delete notification")
		return
	}

	r.emit(sess, "notification:delete-confirm", map[string]any{
		"notificationId": payload.NotificationID,
		"success":        true,
	})
	if !deleted.IsRead {
		r.unread.PushNotificationCount(ctx, payload.UserID)
	}
}

func (r *Router) handleNotificationUnreadCount(ctx context.Context, sess *session, data json.RawMessage) {
	userID, ok := r.scalar(sess, data, "userId")
	if !ok {
		return
	}
	count, err := r.notifications.CountUnreadNotifications(ctx, userID)
	if err != nil {
		log.Printf("unread notification recount failed user=%s: %v", userID, err)
		return
	}
	r.emit(sess, "notification:unread-count", map[string]int{"count": count})
}

// scalar decodes a bare JSON string payload, emitting a scoped validation
// error when it is absent or malformed.
func (r *Router) scalar(sess *session, data json.RawMessage, field string) (string, bool) {
	var value string
	if err := json.Unmarshal(data, &value); err != nil || value == "" {
		r.emitError(sess, "error", "missing "+field)
		return "", false
	}
	return value, true
}

func (r *Router) emit(sess *session, event string, payload any) {
	if err := sess.conn.Send(event, payload); err != nil {
		log.Printf("emit failed conn=%s: %v", sess.conn.ID(), &DeliveryError{Event: event, Err: err})
		observability.IncDeliveryError(event)
	}
}

func (r *Router) emitError(sess *session, event, reason string) {
	r.emit(sess, event, map[string]string{"error": reason})
}

package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skillswap-service/internal/mocks"
	"skillswap-service/internal/models"
)

type routerFixture struct {
	router        *Router
	messages      *mocks.MessageRepositoryMock
	notifications *mocks.NotificationRepositoryMock
	users         *mocks.UserRepositoryMock
	presence      *PresenceRegistry
	rooms         *RoomManager
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		messages:      new(mocks.MessageRepositoryMock),
		notifications: new(mocks.NotificationRepositoryMock),
		users:         new(mocks.UserRepositoryMock),
		presence:      NewPresenceRegistry(),
		rooms:         NewRoomManager(),
	}
	skills := new(mocks.SkillRepositoryMock)
	unread := NewUnreadReconciler(f.messages, f.notifications, f.rooms)
	engine := NewEngine(f.messages, f.notifications, f.users, skills, f.presence, f.rooms, unread)
	f.router = NewRouter(f.presence, f.rooms, engine, unread, f.users, f.messages, f.notifications)
	return f
}

func (f *routerFixture) dispatch(connID, event, data string) {
	f.router.Dispatch(context.Background(), connID, Event{Name: event, Data: json.RawMessage(data)})
}

// join connects a fresh fake connection and performs the user:join handshake,
// stubbing the online transition and the unread counts it triggers.
func (f *routerFixture) join(t *testing.T, userID, connID string, unreadMessages, unreadNotifications int) *fakeConn {
	t.Helper()
	f.users.On("SetOnline", mock.Anything, userID).Return(nil).Maybe()
	f.messages.On("CountUnreadMessages", mock.Anything, userID).Return(unreadMessages, nil).Once()
	f.notifications.On("CountUnreadNotifications", mock.Anything, userID).Return(unreadNotifications, nil).Once()

	conn := newFakeConn(connID)
	f.router.Connect(conn)
	f.dispatch(connID, EventUserJoin, `"`+userID+`"`)
	require.True(t, f.presence.IsOnline(userID))
	return conn
}

func TestRouterJoinEmitsUnreadCounts(t *testing.T) {
	f := newRouterFixture()

	conn := f.join(t, "u2", "c1", 1, 0)

	events := conn.recorded()
	require.Equal(t, []string{"user:online", "unread:counts"}, conn.eventNames())
	assert.Equal(t, UnreadCounts{Messages: 1, Notifications: 0}, events[1].Payload)
	f.users.AssertCalled(t, "SetOnline", mock.Anything, "u2")
}

func TestRouterSecondConnectionSkipsOnlineBroadcast(t *testing.T) {
	f := newRouterFixture()
	first := f.join(t, "u1", "c1", 0, 0)

	f.messages.On("CountUnreadMessages", mock.Anything, "u1").Return(0, nil).Once()
	f.notifications.On("CountUnreadNotifications", mock.Anything, "u1").Return(0, nil).Once()
	second := newFakeConn("c2")
	f.router.Connect(second)
	f.dispatch("c2", EventUserJoin, `"u1"`)

	// Only the first connection flips the user online.
	assert.Equal(t, []string{"user:online", "unread:counts"}, first.eventNames())
	assert.Equal(t, []string{"unread:counts"}, second.eventNames())
	f.users.AssertNumberOfCalls(t, "SetOnline", 1)
}

func TestRouterIgnoresEventsBeforeJoin(t *testing.T) {
	f := newRouterFixture()
	conn := newFakeConn("c1")
	f.router.Connect(conn)

	f.dispatch("c1", EventMessageSend, `{"conversationId":"conv1"}`)
	f.dispatch("c1", EventUsersOnline, `null`)

	assert.Empty(t, conn.recorded())
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestRouterMalformedJoinStaysUnjoined(t *testing.T) {
	f := newRouterFixture()
	conn := newFakeConn("c1")
	f.router.Connect(conn)

	f.dispatch("c1", EventUserJoin, `123`)

	require.Equal(t, []string{"error"}, conn.eventNames())
	assert.Equal(t, map[string]string{"error": "missing userId"}, conn.recorded()[0].Payload)
	assert.Empty(t, f.presence.OnlineUsers())
}

func TestRouterTypingRelayExcludesSender(t *testing.T) {
	f := newRouterFixture()
	sender := f.join(t, "u1", "c1", 0, 0)
	peer := f.join(t, "u2", "c2", 0, 0)
	f.dispatch("c1", EventConversationJoin, `"conv1"`)
	f.dispatch("c2", EventConversationJoin, `"conv1"`)

	f.dispatch("c1", EventTypingStart, `{"conversationId":"conv1","userId":"u1"}`)
	f.dispatch("c1", EventTypingStop, `{"conversationId":"conv1","userId":"u1"}`)

	assert.NotContains(t, sender.eventNames(), "typing:user")
	peerEvents := peer.recorded()
	require.Len(t, peerEvents, 4) // join pair plus the two typing frames
	typing := peerEvents[len(peerEvents)-2:]
	assert.Equal(t, "typing:user", typing[0].Event)
	assert.Equal(t, map[string]any{"userId": "u1", "isTyping": true}, typing[0].Payload)
	assert.Equal(t, map[string]any{"userId": "u1", "isTyping": false}, typing[1].Payload)
}

func TestRouterMessageReadBroadcastsReceipt(t *testing.T) {
	f := newRouterFixture()
	reader := f.join(t, "u2", "c1", 0, 0)
	f.dispatch("c1", EventConversationJoin, `"conv1"`)

	f.messages.On("MarkMessageRead", mock.Anything, "m1").Return(nil).Once()
	f.dispatch("c1", EventMessageRead, `{"messageId":"m1","conversationId":"conv1"}`)

	events := reader.recorded()
	last := events[len(events)-1]
	assert.Equal(t, "message:read-receipt", last.Event)
	assert.Equal(t, map[string]string{"messageId": "m1"}, last.Payload)
	f.messages.AssertExpectations(t)
}

func TestRouterConversationReadEmitsFreshCount(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u2", "c1", 3, 0)

	f.messages.On("MarkConversationRead", mock.Anything, "conv1", "u2").Return(int64(3), nil).Once()
	f.messages.On("CountUnreadMessages", mock.Anything, "u2").Return(0, nil).Once()
	f.dispatch("c1", EventConversationRead, `{"conversationId":"conv1","userId":"u2"}`)

	events := conn.recorded()
	last := events[len(events)-1]
	assert.Equal(t, "unread:update", last.Event)
	assert.Equal(t, map[string]int{"messages": 0}, last.Payload)
	f.messages.AssertExpectations(t)
}

func TestRouterMarkAllReadConfirmsAndResetsCount(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u2", "c1", 0, 3)

	f.notifications.On("MarkAllNotificationsRead", mock.Anything, "u2").Return(int64(3), nil).Once()
	f.dispatch("c1", EventNotifMarkAllRead, `{"userId":"u2"}`)

	events := conn.recorded()
	require.GreaterOrEqual(t, len(events), 2)
	confirm := events[len(events)-2]
	reset := events[len(events)-1]
	assert.Equal(t, "notification:all-read-confirm", confirm.Event)
	assert.Equal(t, map[string]any{"success": true, "modifiedCount": int64(3)}, confirm.Payload)
	assert.Equal(t, "notification:unread-count", reset.Event)
	assert.Equal(t, map[string]int{"count": 0}, reset.Payload)
	f.notifications.AssertExpectations(t)
}

func TestRouterNotificationMarkReadConfirms(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u2", "c1", 0, 2)

	f.notifications.On("MarkNotificationRead", mock.Anything, "n1").Return(models.Notification{ID: "n1", IsRead: true}, nil).Once()
	f.notifications.On("CountUnreadNotifications", mock.Anything, "u2").Return(1, nil).Once()
	f.dispatch("c1", EventNotifMarkRead, `{"notificationId":"n1","userId":"u2"}`)

	events := conn.recorded()
	confirm := events[len(events)-2]
	count := events[len(events)-1]
	assert.Equal(t, "notification:read-confirm", confirm.Event)
	assert.Equal(t, map[string]any{"notificationId": "n1", "success": true}, confirm.Payload)
	assert.Equal(t, "notification:unread-count", count.Event)
	assert.Equal(t, map[string]int{"count": 1}, count.Payload)
}

func TestRouterNotificationDeleteSkipsCountWhenAlreadyRead(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u2", "c1", 0, 0)

	f.notifications.On("DeleteNotification", mock.Anything, "n1").Return(models.Notification{ID: "n1", IsRead: true}, nil).Once()
	f.dispatch("c1", EventNotifDelete, `{"notificationId":"n1","userId":"u2"}`)

	events := conn.recorded()
	last := events[len(events)-1]
	assert.Equal(t, "notification:delete-confirm", last.Event)
	// A read notification never counted toward unread, so no recount push
	// beyond the one issued at join.
	f.notifications.AssertNumberOfCalls(t, "CountUnreadNotifications", 1)
}

func TestRouterMessageSendValidationGoesBackToSenderOnly(t *testing.T) {
	f := newRouterFixture()
	sender := f.join(t, "u1", "c1", 0, 0)
	peer := f.join(t, "u2", "c2", 0, 0)

	f.dispatch("c1", EventMessageSend, `{"conversationId":"conv1"}`)

	events := sender.recorded()
	last := events[len(events)-1]
	assert.Equal(t, "message:error", last.Event)
	assert.NotContains(t, peer.eventNames(), "message:error")
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestRouterUsersOnlineList(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u1", "c1", 0, 0)
	f.join(t, "u2", "c2", 0, 0)

	f.dispatch("c1", EventUsersOnline, `null`)

	events := conn.recorded()
	last := events[len(events)-1]
	require.Equal(t, "users:online-list", last.Event)
	assert.ElementsMatch(t, []string{"u1", "u2"}, last.Payload)
}

func TestRouterUnknownEvent(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u1", "c1", 0, 0)

	f.dispatch("c1", "message:edit", `{}`)

	events := conn.recorded()
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Event)
	assert.Equal(t, map[string]string{"error": "unknown event: message:edit"}, last.Payload)
}

func TestRouterDisconnectBroadcastsOfflineOnLastConnection(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "u1", "c1", 0, 0)

	f.messages.On("CountUnreadMessages", mock.Anything, "u1").Return(0, nil).Once()
	f.notifications.On("CountUnreadNotifications", mock.Anything, "u1").Return(0, nil).Once()
	second := newFakeConn("c2")
	f.router.Connect(second)
	f.dispatch("c2", EventUserJoin, `"u1"`)

	watcher := f.join(t, "u9", "c9", 0, 0)
	f.users.On("SetOffline", mock.Anything, "u1", mock.Anything).Return(nil).Once()

	f.router.Disconnect(context.Background(), "c1")
	assert.True(t, f.presence.IsOnline("u1"), "one connection remains")
	assert.NotContains(t, watcher.eventNames(), "user:offline")

	f.router.Disconnect(context.Background(), "c2")
	assert.False(t, f.presence.IsOnline("u1"))
	events := watcher.recorded()
	last := events[len(events)-1]
	assert.Equal(t, "user:offline", last.Event)
	assert.Equal(t, map[string]string{"userId": "u1"}, last.Payload)
	f.users.AssertExpectations(t)
}

func TestRouterRejoinAsAnotherUserReleasesOldIdentity(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u1", "c1", 0, 0)

	f.users.On("SetOffline", mock.Anything, "u1", mock.Anything).Return(nil).Once()
	f.users.On("SetOnline", mock.Anything, "u2").Return(nil).Once()
	f.messages.On("CountUnreadMessages", mock.Anything, "u2").Return(0, nil).Once()
	f.notifications.On("CountUnreadNotifications", mock.Anything, "u2").Return(0, nil).Once()
	f.dispatch("c1", EventUserJoin, `"u2"`)

	assert.False(t, f.presence.IsOnline("u1"), "old identity must go offline with its only connection rebound")
	assert.True(t, f.presence.IsOnline("u2"))
	assert.Empty(t, f.presence.ConnectionsFor("u1"))
	assert.Contains(t, conn.eventNames(), "user:offline")
	// The connection must no longer receive the old user's pushes.
	assert.Equal(t, 0, f.rooms.Broadcast(NotificationRoom("u1"), "notification:new", nil))
	assert.Equal(t, 1, f.rooms.Broadcast(NotificationRoom("u2"), "notification:new", nil))
	f.users.AssertExpectations(t)

	f.users.On("SetOffline", mock.Anything, "u2", mock.Anything).Return(nil).Once()
	f.router.Disconnect(context.Background(), "c1")
	assert.False(t, f.presence.IsOnline("u2"))
	f.users.AssertExpectations(t)
}

func TestRouterRejoinSameUserIsIdempotent(t *testing.T) {
	f := newRouterFixture()
	f.join(t, "u1", "c1", 0, 0)

	f.messages.On("CountUnreadMessages", mock.Anything, "u1").Return(0, nil).Once()
	f.notifications.On("CountUnreadNotifications", mock.Anything, "u1").Return(0, nil).Once()
	f.dispatch("c1", EventUserJoin, `"u1"`)

	assert.True(t, f.presence.IsOnline("u1"))
	assert.Len(t, f.presence.ConnectionsFor("u1"), 1)
	f.users.AssertNotCalled(t, "SetOffline", mock.Anything, mock.Anything, mock.Anything)
	f.users.AssertNumberOfCalls(t, "SetOnline", 1)
}

func TestRouterDispatchAfterDisconnectIsIgnored(t *testing.T) {
	f := newRouterFixture()
	conn := f.join(t, "u1", "c1", 0, 0)
	f.users.On("SetOffline", mock.Anything, "u1", mock.Anything).Return(nil).Once()
	f.router.Disconnect(context.Background(), "c1")

	before := len(conn.recorded())
	f.dispatch("c1", EventUsersOnline, `null`)
	assert.Len(t, conn.recorded(), before)
}

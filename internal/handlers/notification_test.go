package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skillswap-service/internal/mocks"
	"skillswap-service/internal/models"
	"skillswap-service/internal/realtime"
	"skillswap-service/internal/repositories"
)

type notificationDeps struct {
	repo     *mocks.NotificationRepositoryMock
	messages *mocks.MessageRepositoryMock
	users    *mocks.UserRepositoryMock
}

func newNotificationRouter(d *notificationDeps) *gin.Engine {
	skills := new(mocks.SkillRepositoryMock)
	presence := realtime.NewPresenceRegistry()
	rooms := realtime.NewRoomManager()
	unread := realtime.NewUnreadReconciler(d.messages, d.repo, rooms)
	engine := realtime.NewEngine(d.messages, d.repo, d.users, skills, presence, rooms, unread)
	handler := NewNotificationHandler(d.repo, engine, unread, nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.POST("/notifications", handler.CreateNotification)
	r.POST("/notifications/bulk", handler.CreateNotifications)
	r.GET("/users/:user_id/notifications", handler.ListNotifications)
	r.PATCH("/notifications/:notification_id/read", handler.MarkRead)
	r.PATCH("/users/:user_id/notifications/read-all", handler.MarkAllRead)
	r.DELETE("/notifications/:notification_id", handler.DeleteNotification)
	r.GET("/users/:user_id/notifications/unread-count", handler.GetUnreadCount)
	return r
}

func newNotificationDeps() *notificationDeps {
	return &notificationDeps{
		repo:     new(mocks.NotificationRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
	}
}

func TestCreateNotificationSuccess(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.RecipientID == "u2" && n.Type == "skill_request"
	})).Return(models.Notification{ID: "n1", RecipientID: "u2", Type: "skill_request", Title: "T", Message: "M"}, nil).Once()

	body := bytes.NewBufferString(`{"recipient":"u2","type":"skill_request","title":"T","message":"M"}`)
	req := httptest.NewRequest(http.MethodPost, "/notifications", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["success"])
	// Recipient has no live connections, so the push did not happen.
	assert.Equal(t, false, resp["realtime"])
	d.repo.AssertExpectations(t)
}

func TestCreateNotificationInvalidType(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	body := bytes.NewBufferString(`{"recipient":"u2","type":"carrier-pigeon","title":"T","message":"M"}`)
	req := httptest.NewRequest(http.MethodPost, "/notifications", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.repo.AssertNotCalled(t, "CreateNotification", mock.Anything, mock.Anything)
}

func TestCreateNotificationRepoError(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("CreateNotification", mock.Anything, mock.Anything).Return(models.Notification{}, assert.AnError).Once()

	body := bytes.NewBufferString(`{"recipient":"u2","type":"system","title":"T","message":"M"}`)
	req := httptest.NewRequest(http.MethodPost, "/notifications", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateNotificationsBulk(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	stored := []models.Notification{
		{ID: "n1", RecipientID: "u2", Type: "system", Title: "T", Message: "M"},
		{ID: "n2", RecipientID: "u3", Type: "system", Title: "T", Message: "M"},
	}
	d.repo.On("CreateNotifications", mock.Anything, mock.MatchedBy(func(ns []models.Notification) bool {
		return len(ns) == 2
	})).Return(stored, nil).Once()

	body := bytes.NewBufferString(`{"notifications":[
		{"recipient":"u2","type":"system","title":"T","message":"M"},
		{"recipient":"u3","type":"system","title":"T","message":"M"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/notifications/bulk", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(2), resp["count"])
	d.repo.AssertExpectations(t)
}

func TestListNotificationsPagination(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("ListNotifications", mock.Anything, "u2", mock.MatchedBy(func(f repositories.NotificationFilter) bool {
		return f.Limit == 10 && f.Offset == 10 && f.Type == "message" && f.IsRead != nil && !*f.IsRead
	})).Return([]models.Notification{{ID: "n11"}}, 25, nil).Once()
	d.repo.On("CountUnreadNotifications", mock.Anything, "u2").Return(4, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/u2/notifications?page=2&limit=10&isRead=false&type=message", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UnreadCount int `json:"unreadCount"`
		Pagination  struct {
			Page  int `json:"page"`
			Limit int `json:"limit"`
			Total int `json:"total"`
			Pages int `json:"pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 4, resp.UnreadCount)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.Equal(t, 25, resp.Pagination.Total)
	assert.Equal(t, 3, resp.Pagination.Pages)
	d.repo.AssertExpectations(t)
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("MarkNotificationRead", mock.Anything, "n1").
		Return(models.Notification{ID: "n1", RecipientID: "u2", IsRead: true}, nil).Once()
	d.repo.On("CountUnreadNotifications", mock.Anything, "u2").Return(2, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/notifications/n1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	d.repo.AssertExpectations(t)
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("MarkNotificationRead", mock.Anything, "missing").
		Return(models.Notification{}, repositories.ErrNotificationNotFound).Once()

	req := httptest.NewRequest(http.MethodPatch, "/notifications/missing/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("MarkAllNotificationsRead", mock.Anything, "u2").Return(int64(5), nil).Once()
	d.repo.On("CountUnreadNotifications", mock.Anything, "u2").Return(0, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/users/u2/notifications/read-all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(5), resp["modifiedCount"])
	d.repo.AssertExpectations(t)
}

func TestDeleteUnreadNotificationPushesCount(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("DeleteNotification", mock.Anything, "n1").
		Return(models.Notification{ID: "n1", RecipientID: "u2", IsRead: false}, nil).Once()
	d.repo.On("CountUnreadNotifications", mock.Anything, "u2").Return(1, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/notifications/n1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	d.repo.AssertExpectations(t)
}

func TestDeleteReadNotificationSkipsCount(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("DeleteNotification", mock.Anything, "n1").
		Return(models.Notification{ID: "n1", RecipientID: "u2", IsRead: true}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/notifications/n1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	d.repo.AssertNotCalled(t, "CountUnreadNotifications", mock.Anything, mock.Anything)
}

func TestGetUnreadNotificationCount(t *testing.T) {
	d := newNotificationDeps()
	router := newNotificationRouter(d)

	d.repo.On("CountUnreadNotifications", mock.Anything, "u2").Return(7, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/u2/notifications/unread-count", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(7), resp["count"])
}

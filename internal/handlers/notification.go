package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"skillswap-service/internal/realtime"
	"skillswap-service/internal/repositories"
	"skillswap-service/internal/telemetry"
)

// NotificationHandler exposes the REST notification surface. Creation goes
// through the same delivery engine as the socket path, so REST-originated
// notifications get identical durability and push behavior.
type NotificationHandler struct {
	repo    repositories.NotificationRepository
	engine  *realtime.Engine
	unread  *realtime.UnreadReconciler
	emitter *telemetry.AuditEmitter
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(repo repositories.NotificationRepository, engine *realtime.Engine, unread *realtime.UnreadReconciler, emitter *telemetry.AuditEmitter) *NotificationHandler {
	return &NotificationHandler{repo: repo, engine: engine, unread: unread, emitter: emitter}
}

// CreateNotification persists a notification and pushes it to any live
// connections of the recipient.
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var draft realtime.NotificationDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notification, delivered, err := h.engine.DeliverNotification(c.Request.Context(), draft)
	if err != nil {
		var vErr *realtime.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO", "notification created type="+notification.Type, requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"notification": notification,
		"realtime":     delivered,
	})
}

// CreateNotifications persists a batch in one store call and pushes each
// item best-effort.
func (h *NotificationHandler) CreateNotifications(c *gin.Context) {
	var req struct {
		Notifications []realtime.NotificationDraft `json:"notifications" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.engine.DeliverNotifications(c.Request.Context(), req.Notifications)
	if err != nil {
		var vErr *realtime.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notifications"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "notifications": created, "count": len(created)})
}

// ListNotifications returns a page of the user's notifications plus their
// unread count.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 {
		limit = 20
	}

	filter := repositories.NotificationFilter{
		Type:   c.Query("type"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if isRead := c.Query("isRead"); isRead != "" {
		val := isRead == "true"
		filter.IsRead = &val
	}

	list, total, err := h.repo.ListNotifications(c.Request.Context(), userID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}

	unread, err := h.repo.CountUnreadNotifications(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": list,
		"unreadCount":   unread,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": pages,
		},
	})
}

// MarkRead marks one notification read and pushes the reconciled unread
// count to the recipient's live connections.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	notificationID := c.Param("notification_id")

	notification, err := h.repo.MarkNotificationRead(c.Request.Context(), notificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification as read"})
		return
	}

	h.unread.PushNotificationCount(c.Request.Context(), notification.RecipientID)
	c.JSON(http.StatusOK, gin.H{"success": true, "notification": notification})
}

// MarkAllRead marks every unread notification for the user.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	modified, err := h.repo.MarkAllNotificationsRead(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications as read"})
		return
	}

	h.unread.PushNotificationCount(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"success": true, "modifiedCount": modified})
}

// DeleteNotification removes a notification and, if it was unread, pushes a
// reconciled count.
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	notificationID := c.Param("notification_id")

	deleted, err := h.repo.DeleteNotification(c.Request.Context(), notificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
		return
	}

	if !deleted.IsRead {
		h.unread.PushNotificationCount(c.Request.Context(), deleted.RecipientID)
	}
	c.Status(http.StatusNoContent)
}

// GetUnreadCount returns the user's current unread notification count.
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	count, err := h.repo.CountUnreadNotifications(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"skillswap-service/internal/realtime"
	"skillswap-service/internal/repositories"
)

// MessageHandler exposes the REST message surface. Sends re-enter the
// delivery engine so REST and socket messages share one code path.
type MessageHandler struct {
	repo   repositories.MessageRepository
	engine *realtime.Engine
	unread *realtime.UnreadReconciler
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(repo repositories.MessageRepository, engine *realtime.Engine, unread *realtime.UnreadReconciler) *MessageHandler {
	return &MessageHandler{repo: repo, engine: engine, unread: unread}
}

// ListConversationMessages returns a page of a conversation's visible messages.
func (h *MessageHandler) ListConversationMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 {
		limit = 50
	}

	msgs, err := h.repo.ListConversationMessages(c.Request.Context(), conversationID, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

// SendMessage persists and fans out a message through the delivery engine.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var draft realtime.MessageDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft.ConversationID = c.Param("conversation_id")

	msg, err := h.engine.DeliverMessage(c.Request.Context(), draft)
	if err != nil {
		var vErr *realtime.ValidationError
		var nfErr *realtime.NotFoundError
		switch {
		case errors.As(err, &vErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		case errors.As(err, &nfErr):
			c.JSON(http.StatusNotFound, gin.H{"error": nfErr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkMessageRead marks a single message read.
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	messageID := c.Param("message_id")

	if err := h.repo.MarkMessageRead(c.Request.Context(), messageID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark message as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkConversationRead marks every unread message addressed to the user in
// the conversation and pushes their reconciled unread count.
func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	modified, err := h.repo.MarkConversationRead(c.Request.Context(), conversationID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark conversation as read"})
		return
	}

	h.unread.PushMessageCount(c.Request.Context(), req.UserID)
	c.JSON(http.StatusOK, gin.H{"success": true, "modifiedCount": modified})
}

// DeleteMessage soft-deletes a message and pushes the receiver's reconciled
// unread count, since hiding an unread message changes it.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("message_id")

	msg, err := h.repo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	if err := h.repo.SoftDeleteMessage(c.Request.Context(), messageID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}

	if !msg.IsRead {
		h.unread.PushMessageCount(c.Request.Context(), msg.ReceiverID)
	}
	c.Status(http.StatusNoContent)
}

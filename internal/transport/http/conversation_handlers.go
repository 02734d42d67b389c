package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/service/messaging"
)

// ConversationHandlers exposes the messaging pull surface.
type ConversationHandlers struct {
	messaging *messaging.Service
	log       *zerolog.Logger
}

// NewConversationHandlers creates conversation handlers.
func NewConversationHandlers(svc *messaging.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		messaging: svc,
		log:       logger,
	}
}

// StartConversationRequest is the body of POST /api/conversations.
type StartConversationRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// SendMessageRequest is the body for sending or editing a message.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// CountResponse carries a single counter.
type CountResponse struct {
	Count int `json:"count"`
}

// Start returns the conversation with another user, creating it if needed.
// POST /api/conversations
func (h *ConversationHandlers) Start(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, err := h.messaging.StartOrGetConversation(c.Request.Context(), uid, req.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	view, err := h.messaging.GetConversation(c.Request.Context(), conv.ID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// List returns the caller's conversations, most recently active first.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	views, err := h.messaging.ListConversations(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// Get returns a single conversation.
// GET /api/conversations/:id
func (h *ConversationHandlers) Get(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.messaging.GetConversation(c.Request.Context(), id, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete soft-deletes a conversation.
// DELETE /api/conversations/:id
func (h *ConversationHandlers) Delete(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.messaging.DeleteConversation(c.Request.Context(), id, uid); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Messages returns a newest-first page of messages.
// GET /api/conversations/:id/messages?page=0&size=20
func (h *ConversationHandlers) Messages(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	page := queryInt(c, "page", 0)
	size := queryInt(c, "size", messaging.DefaultPageSize)

	msgs, err := h.messaging.GetMessages(c.Request.Context(), id, page, size, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messaging.NewMessageViews(msgs))
}

// Send posts a message to a conversation.
// POST /api/conversations/:id/messages
func (h *ConversationHandlers) Send(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messaging.SendMessage(c.Request.Context(), id, req.Text, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, messaging.NewMessageView(msg))
}

// ReadAll marks every message the caller received in a conversation as read.
// POST /api/conversations/:id/read
func (h *ConversationHandlers) ReadAll(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, err := h.messaging.MarkAllAsRead(c.Request.Context(), id, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// ReadMessage marks one message as read.
// POST /api/messages/:id/read
func (h *ConversationHandlers) ReadMessage(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.messaging.MarkMessageAsRead(c.Request.Context(), id, uid); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EditMessage replaces the text of the caller's own message.
// PUT /api/messages/:id
func (h *ConversationHandlers) EditMessage(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	msg, err := h.messaging.EditMessage(c.Request.Context(), id, req.Text, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messaging.NewMessageView(msg))
}

// DeleteMessage soft-deletes the caller's own message.
// DELETE /api/messages/:id
func (h *ConversationHandlers) DeleteMessage(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.messaging.DeleteMessage(c.Request.Context(), id, uid); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unread returns the caller's total unread message count.
// GET /api/messages/unread
func (h *ConversationHandlers) Unread(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	n, err := h.messaging.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}

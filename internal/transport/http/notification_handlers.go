package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/service/notifications"
)

// NotificationHandlers exposes the recipient-scoped notification surface.
type NotificationHandlers struct {
	notifications *notifications.Service
	log           *zerolog.Logger
}

// NewNotificationHandlers creates notification handlers.
func NewNotificationHandlers(svc *notifications.Service, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		notifications: svc,
		log:           logger,
	}
}

// AffectedResponse reports how many rows a bulk operation touched.
type AffectedResponse struct {
	Affected int64 `json:"affected"`
}

// List returns a page of the caller's notifications, newest first.
// GET /api/notifications?page=0&size=20
func (h *NotificationHandlers) List(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	views, err := h.notifications.List(c.Request.Context(), uid, queryInt(c, "page", 0), queryInt(c, "size", 20))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// Recent returns the latest notifications for a dropdown.
// GET /api/notifications/recent?limit=5
func (h *NotificationHandlers) Recent(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	views, err := h.notifications.Recent(c.Request.Context(), uid, queryInt(c, "limit", 5))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// Unread returns the caller's unread notification count.
// GET /api/notifications/unread
func (h *NotificationHandlers) Unread(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	n, err := h.notifications.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// MarkRead marks one notification as read.
// POST /api/notifications/:id/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), id, uid); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead marks all of the caller's notifications as read.
// POST /api/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	n, err := h.notifications.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, AffectedResponse{Affected: n})
}

// Delete removes one notification.
// DELETE /api/notifications/:id
func (h *NotificationHandlers) Delete(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), id, uid); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAll removes every notification of the caller.
// DELETE /api/notifications
func (h *NotificationHandlers) DeleteAll(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	n, err := h.notifications.DeleteAll(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, AffectedResponse{Affected: n})
}

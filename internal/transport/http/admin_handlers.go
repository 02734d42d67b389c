package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/service/activity"
	"github.com/vovakirdan/agora-server/internal/service/notifications"
)

// AdminHandlers serves the administrator REST surface.
type AdminHandlers struct {
	activity      *activity.Service
	notifications *notifications.Service
	registry      *core.Registry
	log           *zerolog.Logger
}

// NewAdminHandlers creates admin handlers.
func NewAdminHandlers(act *activity.Service, notif *notifications.Service, registry *core.Registry, logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{
		activity:      act,
		notifications: notif,
		registry:      registry,
		log:           logger,
	}
}

// SystemMessageRequest is the body of POST /api/admin/system-message.
type SystemMessageRequest struct {
	Text string `json:"text"`
}

// CreateNotificationRequest is the body of POST /api/admin/notifications.
type CreateNotificationRequest struct {
	RecipientID int64   `json:"recipient_id"`
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	ActorID     *int64  `json:"actor_id"`
	EntityType  *string `json:"entity_type"`
	EntityID    *int64  `json:"entity_id"`
	ActionURL   string  `json:"action_url"`
	Priority    string  `json:"priority"`
}

// Activities returns the newest activity entries.
// GET /api/admin/activities?limit=50
func (h *AdminHandlers) Activities(c *gin.Context) {
	views, err := h.activity.Recent(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// Stats returns the dashboard counters.
// GET /api/admin/stats
func (h *AdminHandlers) Stats(c *gin.Context) {
	stats, err := h.activity.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Sessions lists the connected websocket sessions.
// GET /api/admin/sessions
func (h *AdminHandlers) Sessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Snapshot())
}

// SystemMessage relays a message to every connected administrator.
// POST /api/admin/system-message
func (h *AdminHandlers) SystemMessage(c *gin.Context) {
	var req SystemMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	principal, ok := c.MustGet(ContextKeyPrincipal).(*core.Principal)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.activity.BroadcastSystemMessage(c.Request.Context(), principal, req.Text); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// CreateNotification creates a notification on behalf of another platform component.
// POST /api/admin/notifications
func (h *AdminHandlers) CreateNotification(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	n, err := h.notifications.Create(c.Request.Context(), notifications.CreateInput{
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Text:        req.Text,
		ActorID:     req.ActorID,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		ActionURL:   req.ActionURL,
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if n == nil {
		// duplicate within the dedup window
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, notifications.NewView(n))
}

// CleanupNotifications purges notifications past the retention window.
// POST /api/admin/notifications/cleanup
func (h *AdminHandlers) CleanupNotifications(c *gin.Context) {
	n, err := h.notifications.Cleanup(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, AffectedResponse{Affected: n})
}

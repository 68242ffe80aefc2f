package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/proto"
)

// NotificationHandlers lets backend services push notifications to live users.
type NotificationHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(hub *core.Hub, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{hub: hub, log: logger}
}

// NotificationResponse reports how many connections the notification was queued for.
type NotificationResponse struct {
	Delivered int `json:"delivered"`
}

// Send delivers a notification to one user or, without userId, to everyone online.
// POST /api/notifications
func (h *NotificationHandlers) Send(c *gin.Context) {
	var req proto.NotificationData
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid notification request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	delivered, err := h.hub.Notify(c.Request.Context(), notificationFromData(req))
	if err != nil {
		var ce *core.CoreError
		if errors.As(err, &ce) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: ce.Message, Code: ce.Code})
			return
		}
		h.log.Error().Err(err).Msg("notify")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "hub unavailable"})
		return
	}

	h.log.Debug().Str("type", req.Type).Str("target", req.UserID).Int("delivered", delivered).Msg("notification sent")
	c.JSON(http.StatusAccepted, NotificationResponse{Delivered: delivered})
}

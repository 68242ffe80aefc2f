package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/learnwire/internal/core"
)

// HealthHandlers reports liveness and hub counters.
type HealthHandlers struct {
	hub *core.Hub
}

// NewHealthHandlers creates the health handlers.
func NewHealthHandlers(hub *core.Hub) *HealthHandlers {
	return &HealthHandlers{hub: hub}
}

// Health answers liveness probes.
// GET /health
func (h *HealthHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Stats returns connection, user and room counts.
// GET /stats
func (h *HealthHandlers) Stats(c *gin.Context) {
	st, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "hub unavailable"})
		return
	}
	c.JSON(http.StatusOK, st)
}

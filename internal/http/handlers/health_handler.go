package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/repo"
)

// healthPingTimeout bounds the storage ping.
const healthPingTimeout = 2 * time.Second

// HealthResponse reports liveness and the storage backend in use.
type HealthResponse struct {
	Status    string             `json:"status" example:"ok"`
	Storage   repo.BackendStatus `json:"storage"`
	Timestamp time.Time          `json:"timestamp"`
}

// Health godoc
// @ID          health
// @Summary     Health check
// @Description Reports "ok", "degraded" when running on the in-memory fallback, or "unavailable" with 503 when storage does not answer.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	st := h.health.Backend()
	resp := HealthResponse{Status: "ok", Storage: st, Timestamp: time.Now().UTC()}
	if st.Degraded {
		resp.Status = "degraded"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()
	if err := h.health.Ping(ctx); err != nil {
		_ = c.Error(err)
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	ok(c, http.StatusOK, resp)
}

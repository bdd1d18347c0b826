// Widget configuration handlers.
//
//   - GET /widget-config                 (public; X-API-Key or ?apiKey=)
//   - PUT /auth/widget-config            (bearer)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/http/middleware"
)

// GetWidgetConfig godoc
// @ID          getWidgetConfig
// @Summary     Widget appearance for an API key
// @Description Unknown or missing keys get the default configuration, so the widget always renders.
// @Tags        Widget
// @Produce     json
// @Param       apiKey  query  string  false  "Widget API key (or X-API-Key header)"
// @Success     200  {object}  domain.WidgetConfig
// @Router      /widget-config [get]
func (h *Handlers) GetWidgetConfig(c *gin.Context) {
	cfg, err := h.accounts.WidgetConfig(c.Request.Context(), middleware.APIKeyFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cfg)
}

// UpdateWidgetConfig godoc
// @ID          updateWidgetConfig
// @Summary     Update widget appearance
// @Description Partial update. Colors are #rgb or #rrggbb; position is one of the four corners; text fields are trimmed and length-checked.
// @Tags        Widget
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  domain.WidgetConfigPatch  true  "Fields to change"
// @Success     200  {object}  domain.WidgetConfig
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid field"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/widget-config [put]
func (h *Handlers) UpdateWidgetConfig(c *gin.Context) {
	var patch domain.WidgetConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cfg, err := h.accounts.UpdateWidgetConfig(c.Request.Context(), middleware.AccountIDFrom(c), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cfg)
}

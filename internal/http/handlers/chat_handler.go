// Widget chat endpoint.
//
//   - POST /ask   (X-API-Key or ?apiKey=)
//
// The handler builds the session context from the request (widget site,
// referer page, visitor ip and user agent, edge geo headers) and hands the
// turn to the turn service. Provider failures never surface here: the
// service answers with a fallback reply and 200.
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/http/middleware"
	"github.com/tbourn/widget-chat-backend/internal/services"
)

// Edge geo headers read for visitor location.
const (
	headerCountry = "CF-IPCountry"
	headerCity    = "CF-IPCity"
)

// AskRequest is the widget's chat payload. Older widget builds send
// sessionId; both spellings are accepted.
type AskRequest struct {
	Message         string `json:"message" example:"Do you ship to Canada?"`
	SessionID       string `json:"session_id" example:"sess_1712345678_ab12cd"`
	LegacySessionID string `json:"sessionId,omitempty" swaggerignore:"true"`
	Website         string `json:"website,omitempty" example:"shop.example.com"`
	Page            string `json:"page,omitempty" example:"https://shop.example.com/shipping"`
	Title           string `json:"title,omitempty" example:"Shipping"`
	Fingerprint     string `json:"fingerprint,omitempty"`
}

func (r AskRequest) sessionID() string {
	if s := strings.TrimSpace(r.SessionID); s != "" {
		return s
	}
	return strings.TrimSpace(r.LegacySessionID)
}

// hostOf returns the host of a URL, or "" when raw does not parse.
func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// sessionContext collects the website and visitor info for a new session.
func sessionContext(c *gin.Context, req AskRequest) domain.SessionContext {
	referer := c.Request.Referer()
	page := strings.TrimSpace(req.Page)
	if page == "" {
		page = referer
	}
	site := strings.TrimSpace(req.Website)
	if site == "" {
		site = hostOf(c.GetHeader("Origin"))
	}
	if site == "" {
		site = hostOf(referer)
	}
	return domain.SessionContext{
		Website: domain.WebsiteInfo{
			Domain: site,
			Page:   page,
			Title:  strings.TrimSpace(req.Title),
		},
		Visitor: domain.VisitorInfo{
			Fingerprint: strings.TrimSpace(req.Fingerprint),
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Country:     c.GetHeader(headerCountry),
			City:        c.GetHeader(headerCity),
		},
	}
}

// Ask godoc
// @ID          ask
// @Summary     Send a widget chat message
// @Description Appends the visitor message to the session (created on first use), asks the
// @Description language model, and returns the reply. When the model fails, a fallback
// @Description reply is returned with 200 and usage is not counted. An Idempotency-Key
// @Description replays the recorded reply for the same session.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       Idempotency-Key  header  string               false  "Retry key for this turn"
// @Param       body             body    handlers.AskRequest  true   "Chat message"
//
// @Success     200  {object}  services.TurnResult
// @Header      200  {string}  Idempotent-Replayed  "true when the reply was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid message or session id"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid API key"
// @Failure     403  {object}  handlers.ErrorResponse  "Session belongs to another account"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Monthly quota or request window exceeded"
// @Failure     503  {object}  handlers.ErrorResponse  "Concurrent write conflict"
// @Router      /ask [post]
func (h *Handlers) Ask(c *gin.Context) {
	acct := middleware.AccountFrom(c)
	if acct == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "API key required")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	idemKey, _ := middleware.GetIdempotencyKey(c)

	res, err := h.turns.SubmitTurn(c.Request.Context(), acct, services.TurnRequest{
		SessionID:      req.sessionID(),
		Message:        req.Message,
		IdempotencyKey: idemKey,
		Context:        sessionContext(c, req),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	ok(c, http.StatusOK, res)
}

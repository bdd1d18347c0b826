// Session and analytics HTTP handlers (bearer).
//
//   - GET  /sessions              (paginated, weak ETag)
//   - GET  /sessions/{id}
//   - POST /sessions/{id}/end
//   - POST /sessions/{id}/rating
//   - GET  /analytics
//   - GET  /message-logs
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/http/middleware"
	"github.com/tbourn/widget-chat-backend/internal/repo"
	"github.com/tbourn/widget-chat-backend/internal/utils"
)

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.ChatSession `json:"sessions"`
	Pagination Pagination           `json:"pagination"`
}

// RateSessionRequest is the one-time session rating.
type RateSessionRequest struct {
	Rating   int    `json:"rating" example:"5"`
	Feedback string `json:"feedback,omitempty" example:"Quick and helpful"`
}

// MessageLogsResponse wraps the newest message log rows.
type MessageLogsResponse struct {
	Logs []domain.MessageLog `json:"logs"`
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List chat sessions (paginated)
// @Description Returns a page of the account's sessions, newest first. Supports weak ETag via If-None-Match.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListSessionsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	acct := middleware.AccountIDFrom(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.sessions.Stats(ctx, acct); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixMicro()
		}
		etag := fmt.Sprintf(`W/"sessions:%s:%d:%d:%d:%d"`, acct, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.sessions.ListPage(ctx, acct, page, pageSize)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list sessions")
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session with its transcript
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Client session id"
// @Success     200  {object}  domain.ChatSession
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// EndSession godoc
// @ID          endSession
// @Summary     End an active session
// @Description Marks the session ended and records its duration.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Client session id"
// @Success     200  {object}  domain.ChatSession
// @Failure     404  {object}  handlers.ErrorResponse  "No active session"
// @Router      /sessions/{id}/end [post]
func (h *Handlers) EndSession(c *gin.Context) {
	s, err := h.sessions.End(c.Request.Context(), c.Param("id"), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// RateSession godoc
// @ID          rateSession
// @Summary     Rate a session
// @Description Records a one-time 1-5 rating with optional feedback.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                        true  "Client session id"
// @Param       body  body  handlers.RateSessionRequest  true  "Rating"
// @Success     200  {object}  domain.ChatSession
// @Failure     400  {object}  handlers.ErrorResponse  "Rating outside 1-5"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already rated"
// @Router      /sessions/{id}/rating [post]
func (h *Handlers) RateSession(c *gin.Context) {
	var req RateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	s, err := h.sessions.Rate(c.Request.Context(), c.Param("id"), middleware.AccountIDFrom(c), req.Rating, strings.TrimSpace(req.Feedback))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// parseBound reads an RFC3339 timestamp or a YYYY-MM-DD date. A date used
// as an upper bound covers the whole day.
func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		d = d.Add(24*time.Hour - time.Microsecond)
	}
	return d, nil
}

// Analytics godoc
// @ID          analytics
// @Summary     Dashboard analytics
// @Description Aggregates sessions created and message logs written in the optional range.
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Param       start  query  string  false  "Range start (RFC3339 or YYYY-MM-DD)"
// @Param       end    query  string  false  "Range end, inclusive (RFC3339 or YYYY-MM-DD)"
// @Success     200  {object}  domain.Analytics
// @Failure     400  {object}  handlers.ErrorResponse  "Unparseable bound"
// @Router      /analytics [get]
func (h *Handlers) Analytics(c *gin.Context) {
	from, err := parseBound(c.Query("start"), false)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start must be RFC3339 or YYYY-MM-DD")
		return
	}
	to, err := parseBound(c.Query("end"), true)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "end must be RFC3339 or YYYY-MM-DD")
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "end is before start")
		return
	}

	a, err := h.analytics.GetAnalytics(c.Request.Context(), middleware.AccountIDFrom(c), repo.TimeRange{From: from, To: to})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// MessageLogs godoc
// @ID          messageLogs
// @Summary     Recent message logs
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query  int  false  "Rows to return"  minimum(1) maximum(500) default(50)
// @Success     200  {object}  handlers.MessageLogsResponse
// @Router      /message-logs [get]
func (h *Handlers) MessageLogs(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	logs, err := h.analytics.RecentLogs(c.Request.Context(), middleware.AccountIDFrom(c), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageLogsResponse{Logs: logs})
}

// Operator HTTP handlers (X-Admin-Key).
//
//   - GET  /admin/dashboard
//   - GET  /admin/subscriptions
//   - GET  /admin/accounts
//   - POST /admin/accounts/{id}/plan
//   - POST /admin/accounts/{id}/usage/reset
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// ListAccountsResponse wraps a page of accounts and pagination information.
type ListAccountsResponse struct {
	Accounts   []domain.Account `json:"accounts"`
	Pagination Pagination       `json:"pagination"`
}

// SetPlanRequest changes an account's plan.
type SetPlanRequest struct {
	Plan string `json:"plan" example:"professional"`
}

// ListAccounts godoc
// @ID          adminListAccounts
// @Summary     List accounts (paginated)
// @Tags        Admin
// @Produce     json
// @Security    AdminKey
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListAccountsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /admin/accounts [get]
func (h *Handlers) ListAccounts(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.accounts.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list accounts")
		return
	}
	for i := range items {
		items[i].APIKey = nil
	}
	ok(c, http.StatusOK, ListAccountsResponse{
		Accounts:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// SetPlan godoc
// @ID          adminSetPlan
// @Summary     Change an account's plan
// @Description Sets the plan without going through billing. Aliases basic and pro are accepted.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    AdminKey
// @Param       id    path  string                   true  "Account id"
// @Param       body  body  handlers.SetPlanRequest  true  "Plan"
// @Success     200  {object}  domain.Account
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid plan"
// @Failure     404  {object}  handlers.ErrorResponse  "Account not found"
// @Router      /admin/accounts/{id}/plan [post]
func (h *Handlers) SetPlan(c *gin.Context) {
	var req SetPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	a, err := h.accounts.SetPlan(c.Request.Context(), c.Param("id"), req.Plan)
	if err != nil {
		failErr(c, err)
		return
	}
	a.APIKey = nil
	ok(c, http.StatusOK, a)
}

// ResetUsage godoc
// @ID          adminResetUsage
// @Summary     Reset monthly usage
// @Tags        Admin
// @Produce     json
// @Security    AdminKey
// @Param       id  path  string  true  "Account id"
// @Success     200  {object}  services.UsageReport
// @Failure     404  {object}  handlers.ErrorResponse  "Account not found"
// @Router      /admin/accounts/{id}/usage/reset [post]
func (h *Handlers) ResetUsage(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.usage.ResetMonthly(ctx, id); err != nil {
		failErr(c, err)
		return
	}
	rep, err := h.usage.Report(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

// Dashboard godoc
// @ID          adminDashboard
// @Summary     Operator overview
// @Description Account totals, free and paid counts, plan distribution, subscription revenue and the newest accounts.
// @Tags        Admin
// @Produce     json
// @Security    AdminKey
// @Success     200  {object}  services.Dashboard
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /admin/dashboard [get]
func (h *Handlers) Dashboard(c *gin.Context) {
	d, err := h.admin.Dashboard(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// SubscriptionReport godoc
// @ID          adminSubscriptions
// @Summary     Active subscription report
// @Tags        Admin
// @Produce     json
// @Security    AdminKey
// @Success     200  {object}  domain.SubscriptionTotals
// @Router      /admin/subscriptions [get]
func (h *Handlers) SubscriptionReport(c *gin.Context) {
	t, err := h.admin.SubscriptionReport(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// Account HTTP handlers.
//
//   - POST /auth/signup
//   - POST /auth/login
//   - GET  /auth/profile               (bearer)
//   - POST /auth/regenerate-api-key    (bearer)
//   - GET  /usage                      (bearer)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/http/middleware"
	"github.com/tbourn/widget-chat-backend/internal/services"
)

// SignupRequest is the registration payload.
type SignupRequest struct {
	Name     string `json:"name" example:"Jane Doe"`
	Email    string `json:"email" example:"jane@example.com"`
	Password string `json:"password" example:"correct-horse"`
	Company  string `json:"company,omitempty" example:"Example Ltd"`
	Website  string `json:"website,omitempty" example:"https://shop.example.com"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" example:"jane@example.com"`
	Password string `json:"password" example:"correct-horse"`
}

// APIKeyResponse carries a freshly generated API key.
type APIKeyResponse struct {
	APIKey string `json:"api_key" example:"cb_5f0c..."`
}

// Signup godoc
// @ID          signup
// @Summary     Register an account
// @Description Creates a free-plan account with an API key and returns a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SignupRequest  true  "Signup payload"
// @Success     201  {object}  services.AuthResult
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields or short password"
// @Failure     409  {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.accounts.Signup(c.Request.Context(), services.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Company:  req.Company,
		Website:  req.Website,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  services.AuthResult
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// Profile godoc
// @ID          profile
// @Summary     Current account
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Account
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/profile [get]
func (h *Handlers) Profile(c *gin.Context) {
	a, err := h.accounts.Profile(c.Request.Context(), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// RegenerateAPIKey godoc
// @ID          regenerateApiKey
// @Summary     Rotate the widget API key
// @Description Issues a new API key; the previous key stops working immediately.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.APIKeyResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/regenerate-api-key [post]
func (h *Handlers) RegenerateAPIKey(c *gin.Context) {
	key, err := h.accounts.RegenerateAPIKey(c.Request.Context(), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, APIKeyResponse{APIKey: key})
}

// Usage godoc
// @ID          usage
// @Summary     Monthly usage and plan limit
// @Tags        Usage
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.UsageReport
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /usage [get]
func (h *Handlers) Usage(c *gin.Context) {
	rep, err := h.usage.Report(c.Request.Context(), middleware.AccountIDFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

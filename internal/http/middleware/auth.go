package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// Credential headers.
const (
	HeaderAPIKey   = "X-API-Key"
	HeaderAdminKey = "X-Admin-Key"
)

const (
	accountKey   = "account"
	accountIDKey = "accountID"
)

// AccountResolver maps credentials to accounts.
type AccountResolver interface {
	ResolveAPIKey(ctx context.Context, key string) (*domain.Account, error)
	ResolveToken(ctx context.Context, raw string) (*domain.Account, error)
}

func setAccount(c *gin.Context, a *domain.Account) {
	c.Set(accountKey, a)
	c.Set(accountIDKey, a.ID)
	lg := LoggerFrom(c).With().Str("account_id", a.ID).Logger()
	attachLogger(c, lg)
}

// AccountFrom returns the authenticated account, or nil.
func AccountFrom(c *gin.Context) *domain.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	a, _ := v.(*domain.Account)
	return a
}

// AccountIDFrom returns the authenticated account id, or "".
func AccountIDFrom(c *gin.Context) string {
	v, _ := c.Get(accountIDKey)
	return asString(v)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}

// APIKeyFrom reads the widget API key from X-API-Key or the apiKey query
// parameter.
func APIKeyFrom(c *gin.Context) string {
	if k := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); k != "" {
		return k
	}
	return strings.TrimSpace(c.Query("apiKey"))
}

// APIKeyAuth authenticates widget traffic by API key.
func APIKeyAuth(r AccountResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := APIKeyFrom(c)
		if key == "" {
			unauthorized(c, "API key required")
			return
		}
		a, err := r.ResolveAPIKey(c.Request.Context(), key)
		if err != nil || a == nil {
			unauthorized(c, "invalid API key")
			return
		}
		setAccount(c, a)
		c.Next()
	}
}

// BearerAuth authenticates dashboard traffic by "Authorization: Bearer".
func BearerAuth(r AccountResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		raw = strings.TrimSpace(raw)
		if !found || raw == "" {
			unauthorized(c, "bearer token required")
			return
		}
		a, err := r.ResolveToken(c.Request.Context(), raw)
		if err != nil || a == nil {
			unauthorized(c, "invalid or expired token")
			return
		}
		setAccount(c, a)
		c.Next()
	}
}

// AdminAuth guards operator routes with a shared key. An empty key disables
// the routes entirely.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "forbidden",
				"message":    "admin access disabled",
			})
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
			unauthorized(c, "invalid admin key")
			return
		}
		c.Next()
	}
}

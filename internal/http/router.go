// Package httpapi wires the HTTP transport (Gin) to the handlers and
// middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, compression,
// CORS, security headers, authentication, and request limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID, then logging, then recovery)
//   - Deterministic router setup; all dependencies injected
//   - CORS open to any embedding site unless an allowlist is configured
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/widget-chat-backend/internal/config"
	_ "github.com/tbourn/widget-chat-backend/internal/docs" // registers the OpenAPI document
	"github.com/tbourn/widget-chat-backend/internal/http/handlers"
	"github.com/tbourn/widget-chat-backend/internal/http/middleware"
)

// maxBodyBytes caps request bodies on every route.
const maxBodyBytes = 1 << 20

// Deps are the collaborators RegisterRoutes needs beyond configuration.
type Deps struct {
	Handlers *handlers.Handlers
	// Resolver authenticates API keys and bearer tokens.
	Resolver middleware.AccountResolver
	// Window counts /ask requests per API key or IP. Nil disables the window.
	Window middleware.WindowCounter
}

var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderAPIKey, middleware.HeaderAdminKey, middleware.HeaderIdempotencyKey,
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (skips /metrics)
//  8. CORS and security headers
//  9. Token-bucket rate limiter per client
//
// Route groups then add credentials: API key for /ask, bearer token for the
// dashboard, X-Admin-Key for operator routes.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	if cfg.RateRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByAPIKeyOrIP())
		r.Use(rl.Handler())
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := d.Handlers
	r.GET("/health", h.Health)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Widget
	ask := []gin.HandlerFunc{}
	if d.Window != nil {
		win := &middleware.WindowLimiter{
			Counter: d.Window,
			Window:  cfg.ChatRateWindow,
			Max:     int64(cfg.ChatRateMax),
			Key:     middleware.KeyByAPIKeyOrIP(),
		}
		ask = append(ask, win.Handler())
	}
	ask = append(ask,
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}),
		middleware.APIKeyAuth(d.Resolver),
		h.Ask,
	)
	api.POST("/ask", ask...)

	// Public widget and pricing reads
	api.GET("/widget-config", h.GetWidgetConfig)
	api.GET("/payments/plans", h.Plans)

	// Auth and processor callbacks
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)
	api.POST("/payments/webhook", h.Webhook)

	// Dashboard
	dash := api.Group("", middleware.BearerAuth(d.Resolver))
	{
		dash.GET("/auth/profile", h.Profile)
		dash.POST("/auth/regenerate-api-key", h.RegenerateAPIKey)
		dash.PUT("/auth/widget-config", h.UpdateWidgetConfig)

		dash.GET("/usage", h.Usage)
		dash.GET("/analytics", h.Analytics)
		dash.GET("/message-logs", h.MessageLogs)

		dash.GET("/sessions", h.ListSessions)
		dash.GET("/sessions/:id", h.GetSession)
		dash.POST("/sessions/:id/end", h.EndSession)
		dash.POST("/sessions/:id/rating", h.RateSession)

		dash.POST("/payments/subscription", h.Subscribe)
		dash.GET("/payments/subscription", h.GetSubscription)
		dash.POST("/payments/subscription/cancel", h.CancelSubscription)
		dash.POST("/payments/subscription/reactivate", h.ReactivateSubscription)
	}

	// Operators
	admin := api.Group("/admin", middleware.AdminAuth(cfg.Auth.AdminAPIKey))
	{
		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/subscriptions", h.SubscriptionReport)
		admin.GET("/accounts", h.ListAccounts)
		admin.POST("/accounts/:id/plan", h.SetPlan)
		admin.POST("/accounts/:id/usage/reset", h.ResetUsage)
	}
}

// corsMiddleware allows any origin when no allowlist is configured, since
// the widget is embedded on arbitrary customer sites. With an allowlist the
// request Origin is echoed only when listed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Set ACAO even without an Origin header so simple probes see it.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body size using http.MaxBytesReader. Requests
// exceeding the cap cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

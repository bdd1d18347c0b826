// Command server runs the widget chat backend HTTP API.
//
// @title           Widget Chat Backend API
// @version         1.0
// @description     Session, usage and billing backend for an embeddable AI chat widget.
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
//
// @securityDefinitions.apikey AdminKey
// @in header
// @name X-Admin-Key
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/widget-chat-backend/internal/auth"
	"github.com/tbourn/widget-chat-backend/internal/billing"
	"github.com/tbourn/widget-chat-backend/internal/config"
	httpapi "github.com/tbourn/widget-chat-backend/internal/http"
	"github.com/tbourn/widget-chat-backend/internal/http/handlers"
	"github.com/tbourn/widget-chat-backend/internal/http/middleware"
	"github.com/tbourn/widget-chat-backend/internal/llm"
	"github.com/tbourn/widget-chat-backend/internal/observability"
	"github.com/tbourn/widget-chat-backend/internal/repo"
	"github.com/tbourn/widget-chat-backend/internal/services"
	"github.com/tbourn/widget-chat-backend/internal/sysutil"
)

const (
	maxMessageRunes = 4000
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)
	version := sysutil.Version(os.Getenv("APP_VERSION"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, version); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, version string) error {
	store, err := repo.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("storage close")
		}
	}()
	backend := store.Backend()
	observability.SetStorageBackend(backend.Kind, backend.Degraded)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version,
		attribute.String("storage.backend", backend.Kind),
		attribute.String("llm.provider", cfg.LLM.Provider),
	)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	provider, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.LLM.Provider).Msg("llm provider unavailable, replies use the fallback text")
		provider = llm.Disabled{}
	}

	var processor billing.Processor = billing.Disabled{}
	if cfg.Stripe.SecretKey != "" {
		processor = billing.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	}

	sessions := services.NewSessionService(store, cfg.Sessions.Retention)
	usage := &services.UsageService{Accounts: store}
	accounts := &services.AccountService{Store: store, Tokens: auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)}
	turns := &services.TurnService{
		Sessions:        sessions,
		Usage:           usage,
		Logs:            store,
		Idem:            store,
		Provider:        provider,
		Model:           cfg.LLM.Model,
		SystemPrompt:    cfg.LLM.SystemPrompt,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		Timeout:         cfg.LLM.Timeout,
		CostPerToken:    cfg.LLM.CostPerToken,
		MaxMessageRunes: maxMessageRunes,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}

	h := handlers.New(handlers.Deps{
		Turns:     turns,
		Accounts:  accounts,
		Sessions:  sessions,
		Usage:     usage,
		Analytics: &services.AnalyticsService{Sessions: store, Logs: store},
		Billing:   &services.BillingService{Accounts: store, Subs: store, Processor: processor, Prices: cfg.Stripe.Prices},
		Admin:     &services.AdminService{Accounts: store, Subs: store},
		Health:    store,
	})

	window, closeWindow := windowCounter(ctx, cfg.Redis)
	defer closeWindow()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Handlers: h, Resolver: accounts, Window: window}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).
			Str("storage", backend.Kind).Bool("degraded", backend.Degraded).
			Str("llm", provider.Name()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sw := &services.Sweeper{Sessions: sessions, Interval: cfg.Sessions.SweepInterval}
		return sw.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// windowCounter returns the shared Redis counter when configured and
// reachable, otherwise a per-process counter.
func windowCounter(ctx context.Context, cfg config.RedisConfig) (middleware.WindowCounter, func()) {
	if cfg.Addr == "" {
		return middleware.NewMemoryCounter(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, chat window is per process")
		_ = client.Close()
		return middleware.NewMemoryCounter(), func() {}
	}
	return &middleware.RedisCounter{Client: client}, func() { _ = client.Close() }
}
